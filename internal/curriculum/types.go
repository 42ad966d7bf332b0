package curriculum

// Difficulty grades a quest.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestType names the kind of evidence a quest expects.
type QuestType string

const (
	QuestPhoto  QuestType = "photo"
	QuestGeotag QuestType = "geotag"
	QuestQR     QuestType = "qr"
	QuestReport QuestType = "report"
	QuestTeam   QuestType = "team"
)

// Valid reports whether t is one of the known evidence types.
func (t QuestType) Valid() bool {
	switch t {
	case QuestPhoto, QuestGeotag, QuestQR, QuestReport, QuestTeam:
		return true
	}
	return false
}

const defaultRequiredScore = 80

// Lane is a themed, ordered sequence of skill nodes.
type Lane struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	Icon        string `yaml:"icon"`
	Nodes       []Node `yaml:"nodes"`
}

// Node is one unit of curriculum: a lesson, its quizzes and a quest.
type Node struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	LaneID        string `yaml:"-"`
	Order         int    `yaml:"order"`
	RequiredScore int    `yaml:"required_score"`
	XPReward      int    `yaml:"xp_reward"`
	Lesson        Lesson `yaml:"lesson"`
	Quizzes       []Quiz `yaml:"quizzes"`
	Quest         Quest  `yaml:"quest"`
}

// MaxQuizScore returns the sum of all quiz points of the node.
func (n Node) MaxQuizScore() int {
	total := 0
	for _, q := range n.Quizzes {
		total += q.Points
	}
	return total
}

// Lesson is the reading material of a node.
type Lesson struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
	ImageURL string `yaml:"image_url"`
	Duration int    `yaml:"duration"` // minutes
}

// Quiz is a single multiple-choice question.
type Quiz struct {
	ID            string   `yaml:"id"`
	Question      string   `yaml:"question"`
	Options       []string `yaml:"options"`
	CorrectAnswer int      `yaml:"correct_answer"`
	Explanation   string   `yaml:"explanation"`
	Points        int      `yaml:"points"`
}

// Quest is a real-world task validated by a teacher.
type Quest struct {
	ID           string     `yaml:"id"`
	Title        string     `yaml:"title"`
	Description  string     `yaml:"description"`
	Type         QuestType  `yaml:"type"`
	Difficulty   Difficulty `yaml:"difficulty"`
	BasePoints   int        `yaml:"base_points"`
	Requirements []string   `yaml:"requirements"`
	TimeLimit    int        `yaml:"time_limit"` // hours, 0 = none
	TeamSize     int        `yaml:"team_size"`
}

// BadgeTrigger selects the automatic rule that awards a badge.
type BadgeTrigger string

const (
	TriggerManual             BadgeTrigger = ""
	TriggerQuestsApproved     BadgeTrigger = "quests_approved"
	TriggerTeamQuestsApproved BadgeTrigger = "team_quests_approved"
	TriggerStreak             BadgeTrigger = "streak"
	TriggerLaneCompleted      BadgeTrigger = "lane_completed"
	TriggerAllLanesCompleted  BadgeTrigger = "all_lanes_completed"
)

// Badge is an achievement worth a number of tokens.
type Badge struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Icon        string       `yaml:"icon"`
	Color       string       `yaml:"color"`
	Requirement string       `yaml:"requirement"`
	Points      int          `yaml:"points"`
	AwardOn     BadgeTrigger `yaml:"award_on"`
	Threshold   int          `yaml:"threshold"`
	LaneID      string       `yaml:"lane_id"`
}

// Course is a marketplace item bought with tokens.
type Course struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	TokenCost   int            `yaml:"token_cost"`
	Duration    int            `yaml:"duration"`
	Certificate string         `yaml:"certificate"`
	Badge       string         `yaml:"badge"`
	Modules     []CourseModule `yaml:"modules"`
}

// CourseModule is one section of a course.
type CourseModule struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
	Type     string `yaml:"type"`
	Duration int    `yaml:"duration"`
}
