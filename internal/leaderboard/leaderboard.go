// Package leaderboard ranks learners by total XP.
package leaderboard

import "sort"

// Entry is one candidate for ranking.
type Entry struct {
	UserID  string
	TotalXP int
}

// Row is one ranked line.
type Row struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TotalXP     int    `json:"total_xp"`
	Position    int    `json:"position"`
}

// Rank sorts by XP descending and breaks ties by user id ascending, so equal
// inputs always give the same order. Positions run 1..N without gaps.
func Rank(entries []Entry, displayName func(userID string) string) []Row {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		name := e.UserID
		if displayName != nil {
			name = displayName(e.UserID)
		}
		rows = append(rows, Row{UserID: e.UserID, DisplayName: name, TotalXP: e.TotalXP})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalXP != rows[j].TotalXP {
			return rows[i].TotalXP > rows[j].TotalXP
		}
		return rows[i].UserID < rows[j].UserID
	})

	for i := range rows {
		rows[i].Position = i + 1
	}
	return rows
}

// Top returns at most n rows; n <= 0 returns all.
func Top(rows []Row, n int) []Row {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}
