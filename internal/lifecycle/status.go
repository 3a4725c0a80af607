package lifecycle

import "missionline/internal/domain"

// DeriveStatus projects a mission's lamp colour from its tasks:
// no tasks is red, all completed is green, any progress is orange,
// otherwise red.
func DeriveStatus(tasks []domain.MissionTask) domain.MissionStatus {
	if len(tasks) == 0 {
		return domain.MissionRed
	}
	allCompleted := true
	progressed := false
	for _, t := range tasks {
		if t.Status != domain.StatusCompleted {
			allCompleted = false
		}
		if t.Status != domain.StatusNew {
			progressed = true
		}
	}
	switch {
	case allCompleted:
		return domain.MissionGreen
	case progressed:
		return domain.MissionOrange
	default:
		return domain.MissionRed
	}
}
