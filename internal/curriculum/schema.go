package curriculum

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const laneSchema = `{
  "type": "object",
  "required": ["id", "title", "nodes"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "title", "order", "quizzes", "quest"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "order": {"type": "integer", "minimum": 1},
          "required_score": {"type": "integer", "minimum": 0, "maximum": 100},
          "xp_reward": {"type": "integer", "minimum": 0},
          "quizzes": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["question", "options", "correct_answer", "points"],
              "properties": {
                "options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
                "correct_answer": {"type": "integer", "minimum": 0},
                "points": {"type": "integer", "minimum": 1}
              }
            }
          },
          "quest": {
            "type": "object",
            "required": ["title", "type", "difficulty", "base_points"],
            "properties": {
              "type": {"enum": ["photo", "geotag", "qr", "report", "team"]},
              "difficulty": {"enum": ["easy", "medium", "hard"]},
              "base_points": {"type": "integer", "minimum": 0},
              "time_limit": {"type": "integer", "minimum": 0},
              "team_size": {"type": "integer", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

const badgesSchema = `{
  "type": "object",
  "required": ["badges"],
  "properties": {
    "badges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "points"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "points": {"type": "integer", "minimum": 0},
          "award_on": {"enum": ["", "quests_approved", "team_quests_approved", "streak", "lane_completed", "all_lanes_completed"]},
          "threshold": {"type": "integer", "minimum": 0},
          "lane_id": {"type": "string"}
        }
      }
    }
  }
}`

const coursesSchema = `{
  "type": "object",
  "required": ["courses"],
  "properties": {
    "courses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "token_cost"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "token_cost": {"type": "integer", "minimum": 0},
          "modules": {"type": "array"}
        }
      }
    }
  }
}`

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func compiledSchema(name string) (*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[string]*gojsonschema.Schema)
		for key, src := range map[string]string{
			"lane":    laneSchema,
			"badges":  badgesSchema,
			"courses": coursesSchema,
		} {
			s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s schema: %w", key, err)
				return
			}
			schemas[key] = s
		}
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

// validateDocument checks a decoded YAML document against a named schema.
func validateDocument(name string, doc any) error {
	schema, err := compiledSchema(name)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", name, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s schema: %s", name, strings.Join(msgs, "; "))
}
