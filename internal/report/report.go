// Package report builds the teacher export workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/greenquest/internal/engine"
	"github.com/p-n-ai/greenquest/internal/leaderboard"
	"github.com/p-n-ai/greenquest/internal/submission"
)

// Sheet names in the workbook.
const (
	SheetLeaderboard = "Leaderboard"
	SheetSubmissions = "Submissions"
)

var (
	leaderboardHeader = []any{"Position", "User ID", "Name", "Total XP"}
	submissionsHeader = []any{
		"Submission ID", "User ID", "Name", "Quest ID", "Quest", "Evidence",
		"Status", "Submitted At", "Decided At", "Validator", "Quality",
		"Tokens", "Comments", "Integrity Hash",
	}
)

// Data is everything the workbook shows.
type Data struct {
	Leaderboard []leaderboard.Row
	Submissions []submission.Submission
	// QuestTitle and DisplayName resolve ids for display; nil leaves the id.
	QuestTitle  func(questID string) string
	DisplayName func(userID string) string
}

// WriteWorkbook renders d as an XLSX workbook into w.
func WriteWorkbook(w io.Writer, d Data) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetLeaderboard); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSubmissions); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	lb := [][]any{leaderboardHeader}
	for _, r := range d.Leaderboard {
		lb = append(lb, []any{r.Position, r.UserID, r.DisplayName, r.TotalXP})
	}
	if err := writeRows(f, SheetLeaderboard, lb, header); err != nil {
		return err
	}

	subs := [][]any{submissionsHeader}
	for _, s := range d.Submissions {
		subs = append(subs, submissionRow(s, d))
	}
	if err := writeRows(f, SheetSubmissions, subs, header); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func submissionRow(s submission.Submission, d Data) []any {
	decided, quality, kind := "", "", ""
	if s.DecidedAt != nil {
		decided = s.DecidedAt.UTC().Format(time.RFC3339)
	}
	if s.QualityScore != nil {
		quality = fmt.Sprintf("%.2f", *s.QualityScore)
	}
	if s.Evidence != nil {
		kind = string(s.Evidence.Kind())
	}
	return []any{
		s.ID,
		s.UserID,
		resolve(d.DisplayName, s.UserID),
		s.QuestID,
		resolve(d.QuestTitle, s.QuestID),
		kind,
		string(s.Status),
		s.CreatedAt.UTC().Format(time.RFC3339),
		decided,
		s.ValidatorID,
		quality,
		s.TokensAwarded,
		s.Comments,
		s.IntegrityHash,
	}
}

func resolve(fn func(string) string, id string) string {
	if fn == nil {
		return id
	}
	return fn(id)
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}
	return nil
}

// ContentType is the media type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Collect gathers the full leaderboard and every submission from eng, with
// roster names and quest titles resolved.
func Collect(eng *engine.Engine) (Data, error) {
	rows, err := eng.Leaderboard("")
	if err != nil {
		return Data{}, err
	}
	subs, err := eng.Submissions("")
	if err != nil {
		return Data{}, err
	}

	graph := eng.Graph()
	return Data{
		Leaderboard: rows,
		Submissions: subs,
		DisplayName: eng.Directory().DisplayName,
		QuestTitle: func(id string) string {
			if q, ok := graph.Quest(id); ok {
				return q.Title
			}
			return id
		},
	}, nil
}
