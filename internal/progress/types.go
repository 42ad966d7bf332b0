package progress

import (
	"maps"
	"slices"
	"time"
)

// LaneProgress is a learner's bookkeeping for one lane.
type LaneProgress struct {
	NodesCompleted     []string       `json:"nodes_completed"`
	TotalXP            int            `json:"total_xp"`
	MasteryPercentages map[string]int `json:"mastery_percentages"`
	LessonsViewed      []string       `json:"lessons_viewed,omitempty"`
}

func newLaneProgress() *LaneProgress {
	return &LaneProgress{
		NodesCompleted:     []string{},
		MasteryPercentages: make(map[string]int),
	}
}

// UserProgress is everything the engine tracks about one learner.
type UserProgress struct {
	UserID           string                   `json:"user_id"`
	Lanes            map[string]*LaneProgress `json:"lanes"`
	Badges           []string                 `json:"badges"`
	TotalTokens      int                      `json:"total_tokens"`
	CurrentStreak    int                      `json:"current_streak"`
	LastActiveDate   time.Time                `json:"last_active_date"`
	UnlockedCourses  []string                 `json:"unlocked_courses"`
	CompletedCourses []string                 `json:"completed_courses"`
}

// NewUserProgress returns an empty record for userID.
func NewUserProgress(userID string) *UserProgress {
	return &UserProgress{
		UserID:           userID,
		Lanes:            make(map[string]*LaneProgress),
		Badges:           []string{},
		UnlockedCourses:  []string{},
		CompletedCourses: []string{},
	}
}

// TotalXP sums XP across lanes.
func (p *UserProgress) TotalXP() int {
	total := 0
	for _, lp := range p.Lanes {
		total += lp.TotalXP
	}
	return total
}

// HasCompleted reports whether the node in laneID is completed.
func (p *UserProgress) HasCompleted(laneID, nodeID string) bool {
	lp, ok := p.Lanes[laneID]
	return ok && slices.Contains(lp.NodesCompleted, nodeID)
}

// HasBadge reports whether the badge was earned.
func (p *UserProgress) HasBadge(badgeID string) bool {
	return slices.Contains(p.Badges, badgeID)
}

// HasUnlockedCourse reports whether the course was purchased.
func (p *UserProgress) HasUnlockedCourse(courseID string) bool {
	return slices.Contains(p.UnlockedCourses, courseID)
}

// HasCompletedCourse reports whether the course was finished.
func (p *UserProgress) HasCompletedCourse(courseID string) bool {
	return slices.Contains(p.CompletedCourses, courseID)
}

// Clone returns a deep copy.
func (p *UserProgress) Clone() *UserProgress {
	c := *p
	c.Lanes = make(map[string]*LaneProgress, len(p.Lanes))
	for id, lp := range p.Lanes {
		if lp == nil {
			continue
		}
		cp := *lp
		cp.NodesCompleted = slices.Clone(lp.NodesCompleted)
		cp.LessonsViewed = slices.Clone(lp.LessonsViewed)
		cp.MasteryPercentages = maps.Clone(lp.MasteryPercentages)
		if cp.MasteryPercentages == nil {
			cp.MasteryPercentages = make(map[string]int)
		}
		c.Lanes[id] = &cp
	}
	c.Badges = slices.Clone(p.Badges)
	c.UnlockedCourses = slices.Clone(p.UnlockedCourses)
	c.CompletedCourses = slices.Clone(p.CompletedCourses)
	return &c
}

func (p *UserProgress) lane(laneID string) *LaneProgress {
	lp, ok := p.Lanes[laneID]
	if !ok {
		lp = newLaneProgress()
		p.Lanes[laneID] = lp
	}
	if lp.MasteryPercentages == nil {
		lp.MasteryPercentages = make(map[string]int)
	}
	return lp
}

// NodeState is the derived view of one node for one learner.
type NodeState struct {
	NodeID        string `json:"node_id"`
	LaneID        string `json:"lane_id"`
	Title         string `json:"title"`
	Order         int    `json:"order"`
	Locked        bool   `json:"locked"`
	Completed     bool   `json:"completed"`
	MasteryScore  int    `json:"mastery_score"`
	RequiredScore int    `json:"required_score"`
	XPReward      int    `json:"xp_reward"`
}

// MasteryOutcome reports the effect of one quiz result.
type MasteryOutcome struct {
	NodeID         string `json:"node_id"`
	LaneID         string `json:"lane_id"`
	Percentage     int    `json:"percentage"`
	Passed         bool   `json:"passed"`
	NewlyMastered  bool   `json:"newly_mastered"`
	XPAwarded      int    `json:"xp_awarded"`
	UnlockedNodeID string `json:"unlocked_node_id,omitempty"`
}

func addUnique(set []string, v string) ([]string, bool) {
	if slices.Contains(set, v) {
		return set, false
	}
	return append(set, v), true
}
