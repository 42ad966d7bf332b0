// Package testutil provides shared curriculum fixtures and a controllable clock for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/greenquest/internal/curriculum"
)

// Epoch is the fixed start time used by Clock.
var Epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced time source.
type Clock struct {
	now time.Time
}

// NewClock returns a clock set to Epoch.
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	return c.now
}

// Advance moves the clock by d, which may be negative.
func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.now = t
}

func quiz(points, correct int) curriculum.Quiz {
	return curriculum.Quiz{
		Question:      "question",
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: correct,
		Points:        points,
	}
}

// Lanes returns two small lanes:
//
//	waste-lane: waste-basics (photo/easy), waste-reduction (report/medium), waste-community (team/hard)
//	water-lane: water-cycle (geotag/easy), water-quality (qr/medium)
func Lanes() []curriculum.Lane {
	return []curriculum.Lane{
		{
			ID:    "waste-lane",
			Title: "Waste Management",
			Nodes: []curriculum.Node{
				{
					ID: "waste-basics", Title: "Waste Sorting Basics", Order: 1,
					Quizzes: []curriculum.Quiz{quiz(10, 1), quiz(10, 1)},
					Quest: curriculum.Quest{
						Title: "Waste Audit Challenge", Type: curriculum.QuestPhoto,
						Difficulty: curriculum.DifficultyEasy, BasePoints: 50,
					},
				},
				{
					ID: "waste-reduction", Title: "Reduce & Reuse", Order: 2,
					Quizzes: []curriculum.Quiz{quiz(15, 0), quiz(15, 3)},
					Quest: curriculum.Quest{
						Title: "Household Waste Report", Type: curriculum.QuestReport,
						Difficulty: curriculum.DifficultyMedium, BasePoints: 75,
					},
				},
				{
					ID: "waste-community", Title: "Community Impact", Order: 3,
					Quizzes: []curriculum.Quiz{quiz(20, 1), quiz(20, 1)},
					Quest: curriculum.Quest{
						Title: "Community Clean-Up Event", Type: curriculum.QuestTeam,
						Difficulty: curriculum.DifficultyHard, BasePoints: 100, TeamSize: 3,
					},
				},
			},
		},
		{
			ID:    "water-lane",
			Title: "Water Conservation",
			Nodes: []curriculum.Node{
				{
					ID: "water-cycle", Title: "Understanding Water", Order: 1,
					Quizzes: []curriculum.Quiz{quiz(10, 3), quiz(10, 1)},
					Quest: curriculum.Quest{
						Title: "Water Source Mapping", Type: curriculum.QuestGeotag,
						Difficulty: curriculum.DifficultyEasy, BasePoints: 50,
					},
				},
				{
					ID: "water-quality", Title: "Water Quality & Treatment", Order: 2,
					Quizzes: []curriculum.Quiz{quiz(20, 1), quiz(20, 1)},
					Quest: curriculum.Quest{
						Title: "Water Testing Station", Type: curriculum.QuestQR,
						Difficulty: curriculum.DifficultyMedium, BasePoints: 75,
					},
				},
			},
		},
	}
}

// Badges returns a catalog with one badge per automatic trigger plus a manual one.
func Badges() []curriculum.Badge {
	return []curriculum.Badge{
		{ID: "first-quest", Title: "Quest Explorer", Points: 25, AwardOn: curriculum.TriggerQuestsApproved, Threshold: 1},
		{ID: "team-player", Title: "Team Player", Points: 75, AwardOn: curriculum.TriggerTeamQuestsApproved, Threshold: 1},
		{ID: "streak-keeper", Title: "Streak Keeper", Points: 50, AwardOn: curriculum.TriggerStreak, Threshold: 7},
		{ID: "waste-warrior", Title: "Waste Warrior", Points: 100, AwardOn: curriculum.TriggerLaneCompleted, LaneID: "waste-lane"},
		{ID: "eco-master", Title: "Eco Master", Points: 500, AwardOn: curriculum.TriggerAllLanesCompleted},
		{ID: "class-helper", Title: "Class Helper", Points: 10},
		{ID: "solar-builder", Title: "Solar Builder", Points: 40},
	}
}

// Courses returns a two-course marketplace.
func Courses() []curriculum.Course {
	return []curriculum.Course{
		{ID: "advanced-composting", Title: "Advanced Composting Techniques", TokenCost: 150, Badge: "compost-master"},
		{ID: "renewable-energy-systems", Title: "DIY Renewable Energy Systems", TokenCost: 200, Badge: "solar-builder"},
	}
}

// Graph builds the full fixture graph.
func Graph(t *testing.T) *curriculum.Graph {
	t.Helper()
	g, err := curriculum.NewGraph(Lanes(), Badges(), Courses())
	require.NoError(t, err)
	return g
}

// GraphWithoutBadges builds the fixture graph with an empty badge catalog so
// token balances only reflect quest rewards.
func GraphWithoutBadges(t *testing.T) *curriculum.Graph {
	t.Helper()
	g, err := curriculum.NewGraph(Lanes(), nil, Courses())
	require.NoError(t, err)
	return g
}
