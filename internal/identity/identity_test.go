package identity_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/identity"
)

const rosterYAML = `
members:
  - user_id: alice-001
    display_name: Alice Chen
    class: 6a
    school: greenwood
  - user_id: ravi-002
    display_name: Ravi Kumar
    class: 6b
    school: greenwood
  - user_id: teacher-001
    display_name: Ms. Johnson
    role: teacher
    school: greenwood
`

func loadRoster(t *testing.T) *identity.Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rosterYAML), 0o644))
	d, err := identity.LoadRoster(path)
	require.NoError(t, err)
	return d
}

func TestLoadRoster(t *testing.T) {
	d := loadRoster(t)
	assert.Equal(t, 3, d.Len())

	m, ok := d.Lookup("alice-001")
	require.True(t, ok)
	assert.Equal(t, identity.RoleStudent, m.Role, "role defaults to student")
	assert.Equal(t, "Alice Chen", d.DisplayName("alice-001"))
	assert.Equal(t, "stranger-9", d.DisplayName("stranger-9"))
}

func TestLoadRoster_Missing(t *testing.T) {
	d, err := identity.LoadRoster(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	_, ok := d.Lookup("alice-001")
	assert.False(t, ok)
	assert.Zero(t, d.Len())
}

func TestNewDirectory_Invalid(t *testing.T) {
	_, err := identity.NewDirectory([]identity.Member{{UserID: "a"}, {UserID: "a"}})
	assert.Error(t, err)

	_, err = identity.NewDirectory([]identity.Member{{UserID: "a", Role: "admin"}})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	d := loadRoster(t)

	got := d.Resolve(identity.Actor{UserID: "alice-001", DisplayName: "ally", Role: identity.RoleStudent})
	assert.Equal(t, "Alice Chen", got.DisplayName, "roster wins")

	got = d.Resolve(identity.Actor{UserID: "guest-1", DisplayName: "Guest"})
	assert.Equal(t, "Guest", got.DisplayName)

	got = d.Resolve(identity.Actor{UserID: "guest-2"})
	assert.Equal(t, "guest-2", got.DisplayName)
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    identity.Scope
		wantErr bool
	}{
		{"", identity.Scope{}, false},
		{"all", identity.Scope{}, false},
		{"class:6a", identity.Scope{Kind: "class", Value: "6a"}, false},
		{"school:greenwood", identity.Scope{Kind: "school", Value: "greenwood"}, false},
		{"class:", identity.Scope{}, true},
		{"planet:earth", identity.Scope{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := identity.ParseScope(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInScope(t *testing.T) {
	d := loadRoster(t)
	class6a := identity.Scope{Kind: "class", Value: "6a"}
	school := identity.Scope{Kind: "school", Value: "greenwood"}

	assert.True(t, d.InScope("alice-001", class6a))
	assert.False(t, d.InScope("ravi-002", class6a))
	assert.True(t, d.InScope("ravi-002", school))
	assert.False(t, d.InScope("teacher-001", school), "teachers are not ranked")
	assert.True(t, d.InScope("stranger", identity.Scope{}))
	assert.False(t, d.InScope("stranger", school))
}

func TestActorIsValidator(t *testing.T) {
	assert.True(t, identity.Actor{Role: identity.RoleTeacher}.IsValidator())
	assert.False(t, identity.Actor{Role: identity.RoleStudent}.IsValidator())
	assert.False(t, identity.Actor{}.IsValidator())
}
