package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"missionline/internal/domain"
	"missionline/internal/events"
	"missionline/internal/lifecycle"
	"missionline/internal/repo"
)

// Instantiate builds the task list a new mission of the given type would
// receive. Nothing is written.
func (e Engine) Instantiate(ctx context.Context, missionID string, missionTypeID int64) ([]domain.MissionTask, error) {
	templates, err := e.ListTemplates(ctx, missionTypeID)
	if err != nil {
		return nil, err
	}
	return lifecycle.Instantiate(missionID, templates, e.newID), nil
}

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	ID            string
	Date          string
	MissionTypeID int64
	ProjectID     int64
	Description   string
	EmployeeIDs   []string
	TeamLeaderID  string
}

// CreateMission writes the mission, its team and its instantiated tasks as
// one unit. Input is validated before the transaction opens; references are
// resolved inside it before the first insert.
func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	employees := dedupe(opts.EmployeeIDs)
	if len(employees) == 0 {
		return domain.Mission{}, domain.ValidationError{Field: "employee_ids", Reason: "at least one employee is required"}
	}
	leader := strings.TrimSpace(opts.TeamLeaderID)
	if !contains(employees, leader) {
		return domain.Mission{}, domain.ValidationError{Field: "team_leader_id", Reason: "must be one of employee_ids"}
	}
	if _, err := time.Parse(dateLayout, opts.Date); err != nil {
		return domain.Mission{}, domain.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	mt, err := e.Repo.GetMissionTypeTx(ctx, tx, opts.MissionTypeID)
	if err != nil {
		return domain.Mission{}, lookup("mission type", typeKey(opts.MissionTypeID), err)
	}
	if _, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID); err != nil {
		return domain.Mission{}, lookup("project", strconv.FormatInt(opts.ProjectID, 10), err)
	}
	for _, id := range employees {
		if _, err := e.Repo.GetEmployeeTx(ctx, tx, id); err != nil {
			return domain.Mission{}, lookup("employee", id, err)
		}
	}
	templates, err := e.Repo.ListTemplatesTx(ctx, tx, mt.ID)
	if err != nil {
		return domain.Mission{}, fail("list templates", err)
	}

	created := e.stamp()
	m := domain.Mission{
		ID:                opts.ID,
		Date:              opts.Date,
		MissionTypeID:     mt.ID,
		ProjectID:         opts.ProjectID,
		Description:       strings.TrimSpace(opts.Description),
		EstimatedDuration: mt.EstimatedDuration,
		CreatedAt:         created,
	}
	if m.ID == "" {
		m.ID = e.newID()
	} else if _, err := e.Repo.GetMissionTx(ctx, tx, m.ID); err == nil {
		return domain.Mission{}, domain.ConflictError{Reason: "mission " + m.ID + " already exists"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Mission{}, fail("load mission", err)
	}
	if err := e.Repo.InsertMissionTx(ctx, tx, m); err != nil {
		return domain.Mission{}, fail("insert mission", err)
	}
	for _, id := range employees {
		link := domain.MissionEmployee{MissionID: m.ID, EmployeeID: id, IsTeamLeader: id == leader}
		if err := e.Repo.InsertMissionEmployeeTx(ctx, tx, link); err != nil {
			return domain.Mission{}, fail("insert mission employee", err)
		}
	}
	tasks := lifecycle.Instantiate(m.ID, templates, e.newID)
	for _, t := range tasks {
		if err := e.Repo.InsertMissionTaskTx(ctx, tx, t, created); err != nil {
			return domain.Mission{}, fail("insert mission task", err)
		}
	}
	if err := e.appendEvent(ctx, tx, "mission.created", "mission", m.ID, events.EventPayload{
		"date":            m.Date,
		"mission_type_id": m.MissionTypeID,
		"project_id":      m.ProjectID,
		"employee_ids":    employees,
		"team_leader_id":  leader,
		"tasks":           len(tasks),
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// GetMission returns a mission with its tasks, team and derived status.
func (e Engine) GetMission(ctx context.Context, id string) (domain.MissionView, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return domain.MissionView{}, lookup("mission", id, err)
	}
	return e.view(ctx, m, map[int64]string{}, map[int64]string{})
}

// ListMissions returns missions newest date first, each with its status
// derived from the tasks as they are now.
func (e Engine) ListMissions(ctx context.Context, f repo.MissionFilter) ([]domain.MissionView, error) {
	missions, err := e.Repo.ListMissions(ctx, f)
	if err != nil {
		return nil, fail("list missions", err)
	}
	typeNames := map[int64]string{}
	projectNames := map[int64]string{}
	res := make([]domain.MissionView, 0, len(missions))
	for _, m := range missions {
		v, err := e.view(ctx, m, typeNames, projectNames)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func (e Engine) view(ctx context.Context, m domain.Mission, typeNames, projectNames map[int64]string) (domain.MissionView, error) {
	v := domain.MissionView{Mission: m}
	if name, ok := typeNames[m.MissionTypeID]; ok {
		v.MissionTypeName = name
	} else {
		mt, err := e.Repo.GetMissionType(ctx, m.MissionTypeID)
		if err != nil {
			return v, lookup("mission type", typeKey(m.MissionTypeID), err)
		}
		typeNames[mt.ID] = mt.Name
		v.MissionTypeName = mt.Name
	}
	if name, ok := projectNames[m.ProjectID]; ok {
		v.ProjectName = name
	} else {
		p, err := e.Repo.GetProject(ctx, m.ProjectID)
		if err != nil {
			return v, lookup("project", strconv.FormatInt(m.ProjectID, 10), err)
		}
		projectNames[p.ID] = p.Name
		v.ProjectName = p.Name
	}
	tasks, err := e.Repo.ListMissionTasks(ctx, m.ID)
	if err != nil {
		return v, fail("list mission tasks", err)
	}
	team, err := e.Repo.ListTeam(ctx, m.ID)
	if err != nil {
		return v, fail("list mission team", err)
	}
	v.Tasks = tasks
	v.Team = team
	v.Status = lifecycle.DeriveStatus(tasks)
	return v, nil
}

// EmployeeCreateOptions are parameters for creating an employee.
type EmployeeCreateOptions struct {
	ID        string
	FirstName string
	LastName  string
}

func (e Engine) CreateEmployee(ctx context.Context, opts EmployeeCreateOptions) (domain.Employee, error) {
	first, err := validateName("first_name", opts.FirstName)
	if err != nil {
		return domain.Employee{}, err
	}
	last, err := validateName("last_name", opts.LastName)
	if err != nil {
		return domain.Employee{}, err
	}
	emp := domain.Employee{ID: strings.TrimSpace(opts.ID), FirstName: first, LastName: last, CreatedAt: e.stamp()}
	if emp.ID == "" {
		emp.ID = e.newID()
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetEmployeeTx(ctx, tx, emp.ID); err == nil {
		return domain.Employee{}, domain.ConflictError{Reason: "employee " + emp.ID + " already exists"}
	}
	if err := e.Repo.InsertEmployeeTx(ctx, tx, emp); err != nil {
		return domain.Employee{}, fail("insert employee", err)
	}
	if err := e.appendEvent(ctx, tx, "employee.created", "employee", emp.ID, events.EventPayload{
		"first_name": emp.FirstName, "last_name": emp.LastName,
	}); err != nil {
		return domain.Employee{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}

func (e Engine) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	res, err := e.Repo.ListEmployees(ctx)
	return res, fail("list employees", err)
}

// DeleteEmployee refuses while any mission still lists the employee.
func (e Engine) DeleteEmployee(ctx context.Context, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetEmployeeTx(ctx, tx, id); err != nil {
		return lookup("employee", id, err)
	}
	n, err := e.Repo.CountEmployeeMissionsTx(ctx, tx, id)
	if err != nil {
		return fail("count employee missions", err)
	}
	if n > 0 {
		return domain.ConflictError{Reason: "employee " + id + " is assigned to " + strconv.Itoa(n) + " mission(s)"}
	}
	if err := e.Repo.DeleteEmployeeTx(ctx, tx, id); err != nil {
		return lookup("employee", id, err)
	}
	if err := e.appendEvent(ctx, tx, "employee.deleted", "employee", id, nil); err != nil {
		return err
	}
	return commit(tx)
}

func (e Engine) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	name, err := validateName("name", name)
	if err != nil {
		return domain.Project{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{Name: name, Description: strings.TrimSpace(description)}
	if p.ID, err = e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fail("insert project", err)
	}
	if err := e.appendEvent(ctx, tx, "project.created", "project", strconv.FormatInt(p.ID, 10), events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	res, err := e.Repo.ListProjects(ctx)
	return res, fail("list projects", err)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	res, err := e.Repo.ListEvents(ctx, f)
	return res, fail("list events", err)
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
