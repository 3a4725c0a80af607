package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"missionline/internal/domain"
)

func tasksWith(statuses ...domain.TaskStatus) []domain.MissionTask {
	var out []domain.MissionTask
	for _, s := range statuses {
		out = append(out, domain.MissionTask{Status: s})
	}
	return out
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name  string
		tasks []domain.MissionTask
		want  domain.MissionStatus
	}{
		{"empty", nil, domain.MissionRed},
		{"all completed", tasksWith(domain.StatusCompleted, domain.StatusCompleted), domain.MissionGreen},
		{"some progress", tasksWith(domain.StatusNew, domain.StatusInProgress), domain.MissionOrange},
		{"all new", tasksWith(domain.StatusNew, domain.StatusNew), domain.MissionRed},
		{"paused counts as progress", tasksWith(domain.StatusPaused, domain.StatusNew), domain.MissionOrange},
		{"completed and new", tasksWith(domain.StatusCompleted, domain.StatusNew), domain.MissionOrange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.tasks))
		})
	}
}
