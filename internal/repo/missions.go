package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"missionline/internal/domain"
)

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO projects(name,description) VALUES (?,?)`, p.Name, nullable(p.Description))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,name,description FROM projects WHERE id=?`, id).Scan(&p.ID, &p.Name, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') FROM projects ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertEmployeeTx(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO employees(id,first_name,last_name,created_at) VALUES (?,?,?,?)`,
		e.ID, e.FirstName, e.LastName, e.CreatedAt)
	return err
}

func (r Repo) GetEmployeeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Employee, error) {
	var e domain.Employee
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,first_name,last_name,created_at FROM employees WHERE id=?`, id).
		Scan(&e.ID, &e.FirstName, &e.LastName, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,first_name,last_name,created_at FROM employees ORDER BY last_name, first_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountEmployeeMissionsTx(ctx context.Context, tx *sql.Tx, employeeID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM mission_employees WHERE employee_id=?`, employeeID).Scan(&n)
	return n, err
}

func (r Repo) DeleteEmployeeTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM employees WHERE id=?`, id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

const missionCols = `id,date,mission_type_id,project_id,description,estimated_duration,created_at`

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	var desc sql.NullString
	if err := scan(&m.ID, &m.Date, &m.MissionTypeID, &m.ProjectID, &desc, &m.EstimatedDuration, &m.CreatedAt); err != nil {
		return m, err
	}
	if desc.Valid {
		m.Description = desc.String
	}
	return m, nil
}

func (r Repo) InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(`+missionCols+`) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.Date, m.MissionTypeID, m.ProjectID, nullable(m.Description), m.EstimatedDuration, m.CreatedAt)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return r.GetMissionTx(ctx, nil, id)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	m, err := scanMission(r.on(tx).QueryRowContext(ctx, `SELECT `+missionCols+` FROM missions WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

type MissionFilter struct {
	Date          string
	MissionTypeID int64
	ProjectID     int64
	EmployeeID    string
	Limit         int
}

// ListMissions returns missions newest date first.
func (r Repo) ListMissions(ctx context.Context, f MissionFilter) ([]domain.Mission, error) {
	var (
		where []string
		args  []any
	)
	if f.Date != "" {
		where = append(where, "date=?")
		args = append(args, f.Date)
	}
	if f.MissionTypeID != 0 {
		where = append(where, "mission_type_id=?")
		args = append(args, f.MissionTypeID)
	}
	if f.ProjectID != 0 {
		where = append(where, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.EmployeeID != "" {
		where = append(where, "id IN (SELECT mission_id FROM mission_employees WHERE employee_id=?)")
		args = append(args, f.EmployeeID)
	}
	q := `SELECT ` + missionCols + ` FROM missions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date DESC, created_at DESC, id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertMissionEmployeeTx(ctx context.Context, tx *sql.Tx, me domain.MissionEmployee) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_employees(mission_id,employee_id,is_team_leader) VALUES (?,?,?)`,
		me.MissionID, me.EmployeeID, boolToInt(me.IsTeamLeader))
	return err
}

// ListTeam returns the employees on a mission, leader first.
func (r Repo) ListTeam(ctx context.Context, missionID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT e.id,e.first_name,e.last_name,e.created_at,me.is_team_leader
FROM mission_employees me JOIN employees e ON e.id = me.employee_id
WHERE me.mission_id=? ORDER BY me.is_team_leader DESC, e.last_name, e.first_name, e.id`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var tm domain.TeamMember
		var leader int
		if err := rows.Scan(&tm.ID, &tm.FirstName, &tm.LastName, &tm.CreatedAt, &leader); err != nil {
			return nil, err
		}
		tm.IsTeamLeader = leader == 1
		res = append(res, tm)
	}
	return res, rows.Err()
}

const taskCols = `id,mission_id,ord,description,estimated_duration,status_id,start_stamp,pause_stamp,unpause_stamp,stop_stamp`

func scanTask(scan func(dest ...any) error) (domain.MissionTask, error) {
	var t domain.MissionTask
	var status int
	var start, pause, unpause, stop sql.NullString
	if err := scan(&t.ID, &t.MissionID, &t.Ord, &t.Description, &t.EstimatedDuration, &status, &start, &pause, &unpause, &stop); err != nil {
		return t, err
	}
	t.Status = domain.TaskStatus(status)
	var err error
	if t.StartStamp, err = parseStamp(start); err != nil {
		return t, err
	}
	if t.PauseStamp, err = parseStamp(pause); err != nil {
		return t, err
	}
	if t.UnpauseStamp, err = parseStamp(unpause); err != nil {
		return t, err
	}
	if t.StopStamp, err = parseStamp(stop); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) InsertMissionTaskTx(ctx context.Context, tx *sql.Tx, t domain.MissionTask, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_tasks(`+taskCols+`,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.MissionID, t.Ord, t.Description, t.EstimatedDuration, int(t.Status),
		formatStamp(t.StartStamp), formatStamp(t.PauseStamp), formatStamp(t.UnpauseStamp), formatStamp(t.StopStamp), createdAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.MissionTask, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.MissionTask, error) {
	t, err := scanTask(r.on(tx).QueryRowContext(ctx, `SELECT `+taskCols+` FROM mission_tasks WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// ListMissionTasks returns a mission's tasks ordered by their snapshot ord.
func (r Repo) ListMissionTasks(ctx context.Context, missionID string) ([]domain.MissionTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM mission_tasks WHERE mission_id=? ORDER BY ord, id`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTaskStatusTx writes next only while the stored status still equals
// observed. It reports false when the row moved on since it was read.
func (r Repo) UpdateTaskStatusTx(ctx context.Context, tx *sql.Tx, next domain.MissionTask, observed domain.TaskStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE mission_tasks SET status_id=?,start_stamp=?,pause_stamp=?,unpause_stamp=?,stop_stamp=?
WHERE id=? AND status_id=?`,
		int(next.Status), formatStamp(next.StartStamp), formatStamp(next.PauseStamp), formatStamp(next.UnpauseStamp), formatStamp(next.StopStamp),
		next.ID, int(observed))
	if err != nil {
		return false, err
	}
	return affected(res)
}

type EventFilter struct {
	EntityKind string
	EntityID   string
	Limit      int
}

// ListEvents returns events newest first.
func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityKind != "" {
		where = append(where, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, f.EntityID)
	}
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
