// Package reward computes the token payout of an approved quest submission.
//
// The computation is a pure function of its Input: the same quest, timestamps,
// quality score, team size and streak always give the same number of tokens.
package reward

import (
	"math"
	"time"

	"github.com/p-n-ai/greenquest/internal/curriculum"
)

// Input is everything the payout depends on.
type Input struct {
	Quest        curriculum.Quest
	SubmittedAt  time.Time
	DecidedAt    time.Time
	QualityScore *float64 // nil means the neutral default
	TeamSize     int      // number of listed team members, 0 when absent
	Streak       int      // streak before this decision's own update
}

// Breakdown records every factor of a payout for audit.
type Breakdown struct {
	Difficulty   float64 `json:"difficulty"`
	Evidence     float64 `json:"evidence"`
	Quality      float64 `json:"quality"`
	Timeliness   float64 `json:"timeliness"`
	Streak       float64 `json:"streak"`
	Team         float64 `json:"team"`
	ElapsedHours float64 `json:"elapsed_hours"`
	Raw          float64 `json:"raw"`
	Tokens       int     `json:"tokens"`
}

// Compute returns the full breakdown of a payout.
func (c Config) Compute(in Input) Breakdown {
	b := Breakdown{
		Difficulty: c.difficultyPoints(in.Quest),
		Evidence:   c.evidenceModifier(in.Quest.Type),
		Quality:    c.quality(in.QualityScore),
		Streak:     c.streakMultiplier(in.Streak),
		Team:       c.teamMultiplier(in.TeamSize),
	}

	b.ElapsedHours = in.DecidedAt.Sub(in.SubmittedAt).Hours()
	b.Timeliness = c.timelinessMultiplier(b.ElapsedHours)

	b.Raw = b.Difficulty * b.Evidence * b.Quality * b.Timeliness * b.Streak * b.Team
	b.Tokens = max(int(math.Round(b.Raw)), 1)
	return b
}

// ComputeTokens returns the payout, always at least 1.
func (c Config) ComputeTokens(in Input) int {
	return c.Compute(in).Tokens
}

// ClampQuality bounds a validator quality score to the configured range.
func (c Config) ClampQuality(q float64) float64 {
	return math.Min(math.Max(q, c.Quality.Min), c.Quality.Max)
}

func (c Config) difficultyPoints(q curriculum.Quest) float64 {
	if pts, ok := c.BaseDifficulty[q.Difficulty]; ok {
		return float64(pts)
	}
	return float64(q.BasePoints)
}

func (c Config) evidenceModifier(t curriculum.QuestType) float64 {
	if m, ok := c.EvidenceModifier[t]; ok {
		return m
	}
	return 1.0
}

func (c Config) quality(score *float64) float64 {
	if score == nil {
		return c.Quality.Default
	}
	return c.ClampQuality(*score)
}

func (c Config) timelinessMultiplier(elapsedHours float64) float64 {
	for _, tier := range c.Timeliness {
		if elapsedHours <= tier.WithinHours {
			return tier.Multiplier
		}
	}
	return c.LateMultiplier
}

func (c Config) streakMultiplier(streak int) float64 {
	if streak < 0 {
		streak = 0
	}
	return math.Min(1+float64(streak)*c.Streak.Step, c.Streak.Max)
}

func (c Config) teamMultiplier(size int) float64 {
	switch {
	case size <= 1:
		return c.Team.Solo
	case size == 2:
		return c.Team.Pair
	case size <= 5:
		return c.Team.Small
	default:
		return c.Team.Large
	}
}
