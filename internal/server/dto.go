package server

import (
	"time"

	"missionline/internal/domain"
)

// Request payloads

type CreateMissionTypeRequest struct {
	Name              string `json:"name" maxLength:"100"`
	EstimatedDuration int    `json:"estimated_duration" minimum:"1" maximum:"1440"`
}

type UpdateMissionTypeRequest struct {
	Name              *string `json:"name,omitempty" maxLength:"100"`
	EstimatedDuration *int    `json:"estimated_duration,omitempty"`
}

type CreateTemplateRequest struct {
	Description       string `json:"description"`
	EstimatedDuration int    `json:"estimated_duration" minimum:"1"`
}

type UpdateTemplateRequest struct {
	Description       *string `json:"description,omitempty"`
	EstimatedDuration *int    `json:"estimated_duration,omitempty"`
}

type MoveTemplateRequest struct {
	Direction string `json:"direction" enum:"up,down"`
}

type CreateEmployeeRequest struct {
	ID        *string `json:"id,omitempty"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type CreateMissionRequest struct {
	ID            *string  `json:"id,omitempty"`
	Date          string   `json:"date" example:"2024-03-04"`
	MissionTypeID int64    `json:"mission_type_id"`
	ProjectID     int64    `json:"project_id"`
	Description   *string  `json:"description,omitempty"`
	EmployeeIDs   []string `json:"employee_ids"`
	TeamLeaderID  string   `json:"team_leader_id"`
}

type TransitionTaskRequest struct {
	Status         string  `json:"status" enum:"new,in_progress,paused,completed"`
	ExpectedStatus *string `json:"expected_status,omitempty" enum:"new,in_progress,paused,completed"`
}

// Responses

type TaskResponse struct {
	ID                string     `json:"id"`
	MissionID         string     `json:"mission_id"`
	Ord               int        `json:"ord"`
	Description       string     `json:"description"`
	EstimatedDuration int        `json:"estimated_duration"`
	StatusID          int        `json:"status_id"`
	Status            string     `json:"status"`
	StartStamp        *time.Time `json:"start_stamp,omitempty"`
	PauseStamp        *time.Time `json:"pause_stamp,omitempty"`
	UnpauseStamp      *time.Time `json:"unpause_stamp,omitempty"`
	StopStamp         *time.Time `json:"stop_stamp,omitempty"`
}

type TeamMemberResponse struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	IsTeamLeader bool   `json:"is_team_leader"`
}

type MissionResponse struct {
	ID                string               `json:"id"`
	Date              string               `json:"date"`
	MissionTypeID     int64                `json:"mission_type_id"`
	MissionTypeName   string               `json:"mission_type_name"`
	ProjectID         int64                `json:"project_id"`
	ProjectName       string               `json:"project_name"`
	Description       string               `json:"description,omitempty"`
	EstimatedDuration int                  `json:"estimated_duration"`
	CreatedAt         string               `json:"created_at"`
	Status            string               `json:"status" enum:"red,orange,green"`
	Tasks             []TaskResponse       `json:"tasks"`
	Team              []TeamMemberResponse `json:"team"`
}

type MissionTypeList struct {
	Items []domain.MissionType `json:"items"`
}

type TemplateList struct {
	Items []domain.TaskTemplate `json:"items"`
}

type EmployeeList struct {
	Items []domain.Employee `json:"items"`
}

type ProjectList struct {
	Items []domain.Project `json:"items"`
}

type MissionList struct {
	Items []MissionResponse `json:"items"`
}

type EventList struct {
	Items []domain.Event `json:"items"`
}

func taskResponse(t domain.MissionTask) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		MissionID:         t.MissionID,
		Ord:               t.Ord,
		Description:       t.Description,
		EstimatedDuration: t.EstimatedDuration,
		StatusID:          int(t.Status),
		Status:            t.Status.String(),
		StartStamp:        t.StartStamp,
		PauseStamp:        t.PauseStamp,
		UnpauseStamp:      t.UnpauseStamp,
		StopStamp:         t.StopStamp,
	}
}

func missionResponse(v domain.MissionView) MissionResponse {
	resp := MissionResponse{
		ID:                v.ID,
		Date:              v.Date,
		MissionTypeID:     v.MissionTypeID,
		MissionTypeName:   v.MissionTypeName,
		ProjectID:         v.ProjectID,
		ProjectName:       v.ProjectName,
		Description:       v.Description,
		EstimatedDuration: v.EstimatedDuration,
		CreatedAt:         v.CreatedAt,
		Status:            string(v.Status),
		Tasks:             []TaskResponse{},
		Team:              []TeamMemberResponse{},
	}
	for _, t := range v.Tasks {
		resp.Tasks = append(resp.Tasks, taskResponse(t))
	}
	for _, m := range v.Team {
		resp.Team = append(resp.Team, TeamMemberResponse{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName, IsTeamLeader: m.IsTeamLeader})
	}
	return resp
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
