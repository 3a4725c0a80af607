package lifecycle

import (
	"sort"

	"missionline/internal/domain"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection validates a move direction.
func ParseDirection(v string) (Direction, error) {
	switch Direction(v) {
	case Up, Down:
		return Direction(v), nil
	}
	return "", domain.ValidationError{Field: "direction", Reason: "must be up or down"}
}

// NextOrd is the ord a newly appended template receives.
func NextOrd(templates []domain.TaskTemplate) int {
	highest := 0
	for _, t := range templates {
		if t.Ord > highest {
			highest = t.Ord
		}
	}
	return highest + 1
}

// Neighbor finds the sibling whose ord differs from t's by exactly one in
// direction d. ok is false when t is already first (up) or last (down).
func Neighbor(siblings []domain.TaskTemplate, t domain.TaskTemplate, d Direction) (domain.TaskTemplate, bool) {
	want := t.Ord + 1
	if d == Up {
		want = t.Ord - 1
	}
	for _, s := range siblings {
		if s.ID != t.ID && s.Ord == want {
			return s, true
		}
	}
	return domain.TaskTemplate{}, false
}

// OrdChange is one row whose ord must be rewritten.
type OrdChange struct {
	ID   string
	From int
	To   int
}

// RenumberPlan returns the rewrites that turn the current ords into 1..N
// while keeping relative order. Ties break on id. A dense set yields no
// changes, so applying the plan twice is the same as applying it once.
func RenumberPlan(templates []domain.TaskTemplate) []OrdChange {
	ordered := make([]domain.TaskTemplate, len(templates))
	copy(ordered, templates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Ord != ordered[j].Ord {
			return ordered[i].Ord < ordered[j].Ord
		}
		return ordered[i].ID < ordered[j].ID
	})
	var changes []OrdChange
	for i, t := range ordered {
		if t.Ord != i+1 {
			changes = append(changes, OrdChange{ID: t.ID, From: t.Ord, To: i + 1})
		}
	}
	return changes
}

// Dense reports whether the ords are exactly {1..N}.
func Dense(templates []domain.TaskTemplate) bool {
	seen := make(map[int]bool, len(templates))
	for _, t := range templates {
		if t.Ord < 1 || t.Ord > len(templates) || seen[t.Ord] {
			return false
		}
		seen[t.Ord] = true
	}
	return true
}
