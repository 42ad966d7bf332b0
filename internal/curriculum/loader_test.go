package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/greenquest/internal/curriculum"
)

const wasteLaneYAML = `
id: waste-lane
title: Waste Management
description: Learn to reduce, reuse, and recycle effectively
nodes:
  - id: waste-reduction
    title: Reduce & Reuse
    order: 2
    quizzes:
      - question: What is the best way to reduce plastic waste?
        options: [Use reusable bags, Burn it, Bury it, Ignore it]
        correct_answer: 0
        points: 15
    quest:
      title: DIY Upcycle Project
      type: photo
      difficulty: medium
      base_points: 75
  - id: waste-basics
    title: Waste Sorting Basics
    order: 1
    lesson:
      title: Waste Sorting Basics - Basics
      content: Waste segregation is the process of separating waste.
      duration: 5
    quizzes:
      - question: Which of these items is biodegradable?
        options: [Plastic bottle, Banana peel, Glass jar, Metal can]
        correct_answer: 1
        points: 10
      - question: What should you do with electronic waste?
        options: [Throw in regular bin, Take to e-waste center, Bury in garden, Burn it]
        correct_answer: 1
        points: 10
    quest:
      title: Waste Audit Challenge
      type: photo
      difficulty: easy
      base_points: 50
`

const badgesYAML = `
badges:
  - id: first-quest
    title: Quest Explorer
    points: 25
    award_on: quests_approved
    threshold: 1
  - id: waste-warrior
    title: Waste Warrior
    points: 100
    award_on: lane_completed
    lane_id: waste-lane
`

const coursesYAML = `
courses:
  - id: advanced-composting
    title: Advanced Composting Techniques
    token_cost: 150
    badge: compost-master
    modules:
      - id: compost-science
        title: The Science of Decomposition
        type: text
        duration: 15
`

func TestLoad(t *testing.T) {
	dir := setupTestCurriculum(t)

	g, err := curriculum.Load(dir)
	require.NoError(t, err)

	lanes := g.Lanes()
	require.Len(t, lanes, 1)
	require.Len(t, lanes[0].Nodes, 2)
	assert.Equal(t, "waste-basics", lanes[0].Nodes[0].ID, "nodes are sorted by order")

	node, ok := g.Node("waste-basics")
	require.True(t, ok)
	assert.Equal(t, "waste-lane", node.LaneID)
	assert.Equal(t, 80, node.RequiredScore)
	assert.Equal(t, 100, node.XPReward)
	assert.Equal(t, "quest-waste-basics", node.Quest.ID)
	assert.Equal(t, "lesson-waste-basics", node.Lesson.ID)
	assert.Equal(t, "quiz-waste-basics-2", node.Quizzes[1].ID)
	assert.Equal(t, 20, node.MaxQuizScore())

	quest, ok := g.Quest("quest-waste-reduction")
	require.True(t, ok)
	assert.Equal(t, curriculum.DifficultyMedium, quest.Difficulty)

	next, ok := g.NodeAt("waste-lane", 2)
	require.True(t, ok)
	assert.Equal(t, "waste-reduction", next.ID)

	_, ok = g.NodeAt("waste-lane", 3)
	assert.False(t, ok)

	badge, ok := g.Badge("waste-warrior")
	require.True(t, ok)
	assert.Equal(t, curriculum.TriggerLaneCompleted, badge.AwardOn)

	course, ok := g.Course("advanced-composting")
	require.True(t, ok)
	assert.Equal(t, 150, course.TokenCost)
	assert.Len(t, course.Modules, 1)
}

func TestLoad_IgnoresUnrelatedYAML(t *testing.T) {
	dir := setupTestCurriculum(t)
	writeFile(t, filepath.Join(dir, "rewards.yaml"), "streak_step: 0.1\n")
	writeFile(t, filepath.Join(dir, "notes", "plan.yaml"), "anything: goes\n")

	g, err := curriculum.Load(dir)
	require.NoError(t, err)
	assert.Len(t, g.Lanes(), 1)
}

func TestLoad_EmptyDir(t *testing.T) {
	g, err := curriculum.Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, g.Lanes())
	assert.Empty(t, g.Badges())
}

func TestLoad_SchemaViolation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lanes", "bad.yaml"), `
id: bad-lane
title: Bad
nodes:
  - id: n1
    title: Node
    order: 1
    quizzes:
      - question: Q?
        options: [a, b]
        correct_answer: 0
        points: 5
    quest:
      title: Quest
      type: video
      difficulty: easy
      base_points: 10
`)

	_, err := curriculum.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lane schema")
}

func TestLoad_OrderGap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lanes", "gap.yaml"), `
id: gap-lane
title: Gap
nodes:
  - id: n1
    title: Node
    order: 1
    quizzes:
      - {question: Q?, options: [a, b], correct_answer: 0, points: 5}
    quest: {title: Quest, type: qr, difficulty: easy, base_points: 10}
  - id: n3
    title: Node
    order: 3
    quizzes:
      - {question: Q?, options: [a, b], correct_answer: 0, points: 5}
    quest: {title: Quest, type: qr, difficulty: easy, base_points: 10}
`)

	_, err := curriculum.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has order 3, want 2")
}

func TestNewGraph_BadgeUnknownLane(t *testing.T) {
	_, err := curriculum.NewGraph(nil, []curriculum.Badge{
		{ID: "x", AwardOn: curriculum.TriggerLaneCompleted, LaneID: "nope"},
	}, nil)
	require.Error(t, err)
}

func setupTestCurriculum(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lanes", "waste.yaml"), wasteLaneYAML)
	writeFile(t, filepath.Join(dir, "badges.yaml"), badgesYAML)
	writeFile(t, filepath.Join(dir, "courses.yaml"), coursesYAML)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
