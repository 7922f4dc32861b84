package roles

import (
	"strings"

	"golang.org/x/text/cases"
)

// Level is an authorization rank. Higher values are strictly more privileged
// and every check against a Level is an "at least" comparison.
type Level int

const (
	Demo          Level = 0
	User          Level = 1
	Admin         Level = 2
	Administrator Level = 98
	Owner         Level = 99
	SuperUser     Level = 1000
)

// hierarchy is ordered from least to most privileged.
var hierarchy = []struct {
	level Level
	label string
}{
	{Demo, "demo"},
	{User, "user"},
	{Admin, "admin"},
	{Administrator, "administrator"},
	{Owner, "owner"},
	{SuperUser, "super-user"},
}

// Label returns the display label of the highest defined level that l reaches.
// It is derived from the level and never used for authorization.
func (l Level) Label() string {
	label := hierarchy[0].label
	for _, h := range hierarchy {
		if l < h.level {
			break
		}
		label = h.label
	}
	return label
}

func (l Level) String() string { return l.Label() }

// Defined reports whether l is one of the named thresholds.
func (l Level) Defined() bool {
	for _, h := range hierarchy {
		if h.level == l {
			return true
		}
	}
	return false
}

// ParseLabel maps a role label such as "Owner" or "super_user" to its level.
func ParseLabel(label string) (Level, bool) {
	s := cases.Fold().String(strings.TrimSpace(label))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	if s == "superuser" {
		s = "super-user"
	}
	for _, h := range hierarchy {
		if h.label == s {
			return h.level, true
		}
	}
	return 0, false
}

// Levels returns every named level in ascending order.
func Levels() []Level {
	out := make([]Level, 0, len(hierarchy))
	for _, h := range hierarchy {
		out = append(out, h.level)
	}
	return out
}
