package curriculum

import (
	"fmt"
	"sort"
)

// Graph is the immutable curriculum: lanes of ordered nodes plus the badge
// and course catalogs. It is safe for concurrent reads.
type Graph struct {
	lanes     []Lane
	laneIndex map[string]int
	nodes     map[string]Node
	quests    map[string]string // quest id -> node id
	badges    []Badge
	badgeByID map[string]Badge
	courses   []Course
	courseMap map[string]Course
}

// NewGraph fills node defaults and checks structural rules: unique ids and
// lane orders exactly 1..N.
func NewGraph(lanes []Lane, badges []Badge, courses []Course) (*Graph, error) {
	g := &Graph{
		laneIndex: make(map[string]int, len(lanes)),
		nodes:     make(map[string]Node),
		quests:    make(map[string]string),
		badgeByID: make(map[string]Badge, len(badges)),
		courseMap: make(map[string]Course, len(courses)),
	}

	for _, lane := range lanes {
		if lane.ID == "" {
			return nil, fmt.Errorf("lane without id")
		}
		if _, dup := g.laneIndex[lane.ID]; dup {
			return nil, fmt.Errorf("duplicate lane %q", lane.ID)
		}

		nodes := make([]Node, len(lane.Nodes))
		copy(nodes, lane.Nodes)
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })

		for i := range nodes {
			n := &nodes[i]
			if n.ID == "" {
				return nil, fmt.Errorf("lane %q: node without id", lane.ID)
			}
			if n.Order != i+1 {
				return nil, fmt.Errorf("lane %q: node %q has order %d, want %d", lane.ID, n.ID, n.Order, i+1)
			}
			if _, dup := g.nodes[n.ID]; dup {
				return nil, fmt.Errorf("duplicate node %q", n.ID)
			}
			applyNodeDefaults(lane.ID, n)
			if _, dup := g.quests[n.Quest.ID]; dup {
				return nil, fmt.Errorf("duplicate quest %q", n.Quest.ID)
			}
			if !n.Quest.Type.Valid() {
				return nil, fmt.Errorf("node %q: unknown quest type %q", n.ID, n.Quest.Type)
			}
			g.nodes[n.ID] = *n
			g.quests[n.Quest.ID] = n.ID
		}

		lane.Nodes = nodes
		g.laneIndex[lane.ID] = len(g.lanes)
		g.lanes = append(g.lanes, lane)
	}

	for _, b := range badges {
		if b.ID == "" {
			return nil, fmt.Errorf("badge without id")
		}
		if _, dup := g.badgeByID[b.ID]; dup {
			return nil, fmt.Errorf("duplicate badge %q", b.ID)
		}
		if b.AwardOn == TriggerLaneCompleted {
			if _, ok := g.laneIndex[b.LaneID]; !ok {
				return nil, fmt.Errorf("badge %q: unknown lane %q", b.ID, b.LaneID)
			}
		}
		g.badgeByID[b.ID] = b
		g.badges = append(g.badges, b)
	}

	for _, c := range courses {
		if c.ID == "" {
			return nil, fmt.Errorf("course without id")
		}
		if _, dup := g.courseMap[c.ID]; dup {
			return nil, fmt.Errorf("duplicate course %q", c.ID)
		}
		if c.TokenCost < 0 {
			return nil, fmt.Errorf("course %q: negative token cost", c.ID)
		}
		g.courseMap[c.ID] = c
		g.courses = append(g.courses, c)
	}

	return g, nil
}

func applyNodeDefaults(laneID string, n *Node) {
	n.LaneID = laneID
	if n.RequiredScore == 0 {
		n.RequiredScore = defaultRequiredScore
	}
	if n.XPReward == 0 {
		n.XPReward = n.Quest.BasePoints * 2
	}
	if n.Lesson.ID == "" {
		n.Lesson.ID = "lesson-" + n.ID
	}
	if n.Quest.ID == "" {
		n.Quest.ID = "quest-" + n.ID
	}
	for i := range n.Quizzes {
		if n.Quizzes[i].ID == "" {
			n.Quizzes[i].ID = fmt.Sprintf("quiz-%s-%d", n.ID, i+1)
		}
	}
}

// Lanes returns all lanes in load order.
func (g *Graph) Lanes() []Lane {
	return append([]Lane(nil), g.lanes...)
}

// Lane returns a lane by id.
func (g *Graph) Lane(id string) (Lane, bool) {
	i, ok := g.laneIndex[id]
	if !ok {
		return Lane{}, false
	}
	return g.lanes[i], true
}

// Node returns a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeAt returns the node with the given order in a lane.
func (g *Graph) NodeAt(laneID string, order int) (Node, bool) {
	lane, ok := g.Lane(laneID)
	if !ok || order < 1 || order > len(lane.Nodes) {
		return Node{}, false
	}
	return lane.Nodes[order-1], true
}

// QuestNode returns the node that owns a quest.
func (g *Graph) QuestNode(questID string) (Node, bool) {
	nodeID, ok := g.quests[questID]
	if !ok {
		return Node{}, false
	}
	return g.nodes[nodeID], true
}

// Quest returns a quest by id.
func (g *Graph) Quest(questID string) (Quest, bool) {
	n, ok := g.QuestNode(questID)
	return n.Quest, ok
}

// Badges returns the badge catalog.
func (g *Graph) Badges() []Badge {
	return append([]Badge(nil), g.badges...)
}

// Badge returns a badge by id.
func (g *Graph) Badge(id string) (Badge, bool) {
	b, ok := g.badgeByID[id]
	return b, ok
}

// Courses returns the course catalog.
func (g *Graph) Courses() []Course {
	return append([]Course(nil), g.courses...)
}

// Course returns a course by id.
func (g *Graph) Course(id string) (Course, bool) {
	c, ok := g.courseMap[id]
	return c, ok
}
