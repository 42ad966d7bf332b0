// Package identity adapts the external identity provider: who is acting, in
// which role, under which display name, and which class or school they
// belong to.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/greenquest/internal/apperr"
)

// Role is an actor's authority.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// Actor is the caller of an engine operation.
type Actor struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// IsValidator reports whether the actor may approve or reject submissions.
func (a Actor) IsValidator() bool {
	return a.Role == RoleTeacher
}

// Member is one roster entry.
type Member struct {
	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`
	Role        Role   `yaml:"role"`
	Class       string `yaml:"class"`
	School      string `yaml:"school"`
}

// Directory answers display-name and scope membership questions.
type Directory struct {
	members map[string]Member
}

// NewDirectory indexes members by user id.
func NewDirectory(members []Member) (*Directory, error) {
	d := &Directory{members: make(map[string]Member, len(members))}
	for _, m := range members {
		if m.UserID == "" {
			return nil, fmt.Errorf("roster member without user_id")
		}
		if _, dup := d.members[m.UserID]; dup {
			return nil, fmt.Errorf("duplicate roster member %q", m.UserID)
		}
		if m.Role == "" {
			m.Role = RoleStudent
		}
		if !m.Role.Valid() {
			return nil, fmt.Errorf("roster member %q: unknown role %q", m.UserID, m.Role)
		}
		d.members[m.UserID] = m
	}
	return d, nil
}

// LoadRoster reads a roster file. A missing file gives an empty directory.
func LoadRoster(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("roster not found, display names fall back to user ids", "path", path)
		return NewDirectory(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}

	var file struct {
		Members []Member `yaml:"members"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}

	d, err := NewDirectory(file.Members)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	slog.Info("roster loaded", "members", len(d.members))
	return d, nil
}

// Len returns the number of roster members.
func (d *Directory) Len() int { return len(d.members) }

// Lookup returns a roster member.
func (d *Directory) Lookup(userID string) (Member, bool) {
	m, ok := d.members[userID]
	return m, ok
}

// DisplayName returns the roster name, or the id when the user is unknown.
func (d *Directory) DisplayName(userID string) string {
	if m, ok := d.members[userID]; ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return userID
}

// Resolve fills an actor's display name from the roster when it is known
// there, and falls back to the supplied name and then the id.
func (d *Directory) Resolve(a Actor) Actor {
	if m, ok := d.members[a.UserID]; ok && m.DisplayName != "" {
		a.DisplayName = m.DisplayName
	}
	if a.DisplayName == "" {
		a.DisplayName = a.UserID
	}
	return a
}

// Scope selects a subpopulation: everyone, one class or one school.
type Scope struct {
	Kind  string // "", "class" or "school"
	Value string
}

// ParseScope accepts "", "class:<id>" and "school:<id>".
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return Scope{}, nil
	}
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" || (kind != "class" && kind != "school") {
		return Scope{}, apperr.Validation("identity.ParseScope", "unknown scope %q", s)
	}
	return Scope{Kind: kind, Value: value}, nil
}

// String is the inverse of ParseScope.
func (s Scope) String() string {
	if s.Kind == "" {
		return "all"
	}
	return s.Kind + ":" + s.Value
}

// InScope reports whether a learner belongs to the scope. Teachers are never
// ranked; unknown users only appear in the unrestricted scope.
func (d *Directory) InScope(userID string, s Scope) bool {
	m, known := d.members[userID]
	if known && m.Role == RoleTeacher {
		return false
	}
	switch s.Kind {
	case "":
		return true
	case "class":
		return known && m.Class == s.Value
	case "school":
		return known && m.School == s.Value
	}
	return false
}
