package lifecycle

import (
	"sort"

	"missionline/internal/domain"
)

// Instantiate copies templates into tasks owned by missionID, in ascending
// ord. ord, description and estimated duration are copied verbatim and every
// task starts New. An empty template set yields no tasks.
func Instantiate(missionID string, templates []domain.TaskTemplate, newID func() string) []domain.MissionTask {
	ordered := make([]domain.TaskTemplate, len(templates))
	copy(ordered, templates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ord < ordered[j].Ord })

	tasks := make([]domain.MissionTask, 0, len(ordered))
	for _, tpl := range ordered {
		tasks = append(tasks, domain.MissionTask{
			ID:                newID(),
			MissionID:         missionID,
			Ord:               tpl.Ord,
			Description:       tpl.Description,
			EstimatedDuration: tpl.EstimatedDuration,
			Status:            domain.StatusNew,
		})
	}
	return tasks
}
