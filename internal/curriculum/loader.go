package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads curriculum content from a directory:
//
//	lanes/*.yaml   one lane per file
//	badges.yaml    badge catalog
//	courses.yaml   marketplace catalog
//
// Other files (rewards.yaml, roster.yaml, notes) are ignored.
type Loader struct {
	rootDir string
	lanes   []Lane
	badges  []Badge
	courses []Course
}

// Load reads every content file under rootDir and builds the graph.
func Load(rootDir string) (*Graph, error) {
	l := &Loader{rootDir: rootDir}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	g, err := NewGraph(l.lanes, l.badges, l.courses)
	if err != nil {
		return nil, fmt.Errorf("building curriculum: %w", err)
	}

	slog.Info("curriculum loaded",
		"lanes", len(l.lanes),
		"badges", len(l.badges),
		"courses", len(l.courses),
	)
	return g, nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isYAML(path) {
			return nil
		}

		rel, err := filepath.Rel(l.rootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case strings.HasPrefix(rel, "lanes/"):
			return l.loadLane(path)
		case rel == "badges.yaml" || rel == "badges.yml":
			return l.loadBadges(path)
		case rel == "courses.yaml" || rel == "courses.yml":
			return l.loadCourses(path)
		}
		return nil
	})
}

func (l *Loader) loadLane(path string) error {
	var lane Lane
	if err := decodeValidated(path, "lane", &lane); err != nil {
		return err
	}
	l.lanes = append(l.lanes, lane)
	return nil
}

func (l *Loader) loadBadges(path string) error {
	var file struct {
		Badges []Badge `yaml:"badges"`
	}
	if err := decodeValidated(path, "badges", &file); err != nil {
		return err
	}
	l.badges = append(l.badges, file.Badges...)
	return nil
}

func (l *Loader) loadCourses(path string) error {
	var file struct {
		Courses []Course `yaml:"courses"`
	}
	if err := decodeValidated(path, "courses", &file); err != nil {
		return err
	}
	l.courses = append(l.courses, file.Courses...)
	return nil
}

// decodeValidated parses a YAML file, checks it against the named schema and
// decodes it into out.
func decodeValidated(path, schema string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := validateDocument(schema, doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
