package reward

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/greenquest/internal/curriculum"
)

// Config holds the immutable reward parameters.
type Config struct {
	BaseDifficulty   map[curriculum.Difficulty]int    `yaml:"base_difficulty"`
	EvidenceModifier map[curriculum.QuestType]float64 `yaml:"evidence_modifiers"`
	Quality          QualityBounds                    `yaml:"validator_quality"`
	Timeliness       []TimelinessTier                 `yaml:"timeliness"`
	LateMultiplier   float64                          `yaml:"late_multiplier"`
	Streak           StreakBonus                      `yaml:"streak"`
	Team             TeamBonus                        `yaml:"team_bonus"`
}

// QualityBounds bounds the validator's quality score.
type QualityBounds struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
}

// TimelinessTier applies Multiplier when the decision comes within WithinHours
// of the submission.
type TimelinessTier struct {
	WithinHours float64 `yaml:"within_hours"`
	Multiplier  float64 `yaml:"multiplier"`
}

// StreakBonus grows by Step per streak day up to Max.
type StreakBonus struct {
	Step float64 `yaml:"step"`
	Max  float64 `yaml:"max"`
}

// TeamBonus multiplies by team size: 1, 2, 3-5, 6+.
type TeamBonus struct {
	Solo  float64 `yaml:"solo"`
	Pair  float64 `yaml:"pair"`
	Small float64 `yaml:"small"`
	Large float64 `yaml:"large"`
}

// DefaultConfig returns the standard reward table.
func DefaultConfig() Config {
	return Config{
		BaseDifficulty: map[curriculum.Difficulty]int{
			curriculum.DifficultyEasy:   50,
			curriculum.DifficultyMedium: 75,
			curriculum.DifficultyHard:   100,
		},
		EvidenceModifier: map[curriculum.QuestType]float64{
			curriculum.QuestPhoto:  1.0,
			curriculum.QuestGeotag: 1.2,
			curriculum.QuestQR:     1.1,
			curriculum.QuestReport: 1.3,
			curriculum.QuestTeam:   1.5,
		},
		Quality: QualityBounds{Min: 0.5, Max: 1.5, Default: 1.0},
		Timeliness: []TimelinessTier{
			{WithinHours: 1, Multiplier: 1.2},
			{WithinHours: 24, Multiplier: 1.1},
			{WithinHours: 168, Multiplier: 1.0},
		},
		LateMultiplier: 0.8,
		Streak:         StreakBonus{Step: 0.1, Max: 2.0},
		Team:           TeamBonus{Solo: 1.0, Pair: 1.1, Small: 1.2, Large: 1.3},
	}
}

// LoadConfig reads overrides from a YAML file on top of DefaultConfig.
// A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading reward config: %w", err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Config{}, fmt.Errorf("parsing reward config: %w", err)
	}
	cfg.merge(override)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(o Config) {
	for k, v := range o.BaseDifficulty {
		c.BaseDifficulty[k] = v
	}
	for k, v := range o.EvidenceModifier {
		c.EvidenceModifier[k] = v
	}
	if o.Quality != (QualityBounds{}) {
		c.Quality = o.Quality
	}
	if len(o.Timeliness) > 0 {
		c.Timeliness = o.Timeliness
	}
	if o.LateMultiplier != 0 {
		c.LateMultiplier = o.LateMultiplier
	}
	if o.Streak != (StreakBonus{}) {
		c.Streak = o.Streak
	}
	if o.Team != (TeamBonus{}) {
		c.Team = o.Team
	}
	sort.Slice(c.Timeliness, func(i, j int) bool {
		return c.Timeliness[i].WithinHours < c.Timeliness[j].WithinHours
	})
}

// Validate checks the table is usable.
func (c Config) Validate() error {
	if c.Quality.Min <= 0 || c.Quality.Min > c.Quality.Max {
		return fmt.Errorf("validator_quality: min must be positive and not above max")
	}
	if c.Quality.Default < c.Quality.Min || c.Quality.Default > c.Quality.Max {
		return fmt.Errorf("validator_quality: default %.2f outside [%.2f, %.2f]",
			c.Quality.Default, c.Quality.Min, c.Quality.Max)
	}
	if c.Streak.Max < 1 {
		return fmt.Errorf("streak: max multiplier must be at least 1")
	}
	for d, pts := range c.BaseDifficulty {
		if pts < 0 {
			return fmt.Errorf("base_difficulty: %s is negative", d)
		}
	}
	return nil
}
