package domain

import "time"

// TaskStatus ids match the rows seeded into status_types.
type TaskStatus int

const (
	StatusNew        TaskStatus = 1
	StatusInProgress TaskStatus = 2
	StatusPaused     TaskStatus = 3
	StatusCompleted  TaskStatus = 4
)

func (s TaskStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInProgress:
		return "in_progress"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four known states.
func (s TaskStatus) Valid() bool {
	return s >= StatusNew && s <= StatusCompleted
}

// ParseTaskStatus accepts the names returned by String.
func ParseTaskStatus(v string) (TaskStatus, bool) {
	for _, s := range []TaskStatus{StatusNew, StatusInProgress, StatusPaused, StatusCompleted} {
		if s.String() == v {
			return s, true
		}
	}
	return 0, false
}

// MissionStatus is always derived from tasks, never stored.
type MissionStatus string

const (
	MissionRed    MissionStatus = "red"
	MissionOrange MissionStatus = "orange"
	MissionGreen  MissionStatus = "green"
)

type MissionType struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	EstimatedDuration int    `json:"estimated_duration"`
}

type TaskTemplate struct {
	ID                string `json:"id"`
	MissionTypeID     int64  `json:"mission_type_id"`
	Ord               int    `json:"ord"`
	Description       string `json:"description"`
	EstimatedDuration int    `json:"estimated_duration"`
}

type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Employee struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Mission struct {
	ID                string `json:"id"`
	Date              string `json:"date" format:"date"`
	MissionTypeID     int64  `json:"mission_type_id"`
	ProjectID         int64  `json:"project_id"`
	Description       string `json:"description,omitempty"`
	EstimatedDuration int    `json:"estimated_duration"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

type MissionTask struct {
	ID                string     `json:"id"`
	MissionID         string     `json:"mission_id"`
	Ord               int        `json:"ord"`
	Description       string     `json:"description"`
	EstimatedDuration int        `json:"estimated_duration"`
	Status            TaskStatus `json:"status_id"`
	StartStamp        *time.Time `json:"start_stamp,omitempty"`
	PauseStamp        *time.Time `json:"pause_stamp,omitempty"`
	UnpauseStamp      *time.Time `json:"unpause_stamp,omitempty"`
	StopStamp         *time.Time `json:"stop_stamp,omitempty"`
}

type MissionEmployee struct {
	MissionID    string `json:"mission_id"`
	EmployeeID   string `json:"employee_id"`
	IsTeamLeader bool   `json:"is_team_leader"`
}

// TeamMember is an employee as seen from one mission.
type TeamMember struct {
	Employee
	IsTeamLeader bool `json:"is_team_leader"`
}

// MissionView is the read projection of a mission with its derived status.
type MissionView struct {
	Mission
	MissionTypeName string        `json:"mission_type_name"`
	ProjectName     string        `json:"project_name"`
	Status          MissionStatus `json:"status"`
	Tasks           []MissionTask `json:"tasks"`
	Team            []TeamMember  `json:"team"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
