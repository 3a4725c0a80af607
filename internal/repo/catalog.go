package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"missionline/internal/domain"
)

const missionTypeCols = `id,name,estimated_duration`

func scanMissionType(row *sql.Row) (domain.MissionType, error) {
	var mt domain.MissionType
	err := row.Scan(&mt.ID, &mt.Name, &mt.EstimatedDuration)
	if errors.Is(err, sql.ErrNoRows) {
		return mt, ErrNotFound
	}
	return mt, err
}

func (r Repo) InsertMissionTypeTx(ctx context.Context, tx *sql.Tx, name string, estimatedDuration int) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO mission_types(name,estimated_duration) VALUES (?,?)`, name, estimatedDuration)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetMissionType(ctx context.Context, id int64) (domain.MissionType, error) {
	return r.GetMissionTypeTx(ctx, nil, id)
}

func (r Repo) GetMissionTypeTx(ctx context.Context, tx *sql.Tx, id int64) (domain.MissionType, error) {
	return scanMissionType(r.on(tx).QueryRowContext(ctx, `SELECT `+missionTypeCols+` FROM mission_types WHERE id=?`, id))
}

func (r Repo) GetMissionTypeByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.MissionType, error) {
	return scanMissionType(r.on(tx).QueryRowContext(ctx, `SELECT `+missionTypeCols+` FROM mission_types WHERE name=?`, name))
}

func (r Repo) ListMissionTypes(ctx context.Context) ([]domain.MissionType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionTypeCols+` FROM mission_types ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionType
	for rows.Next() {
		var mt domain.MissionType
		if err := rows.Scan(&mt.ID, &mt.Name, &mt.EstimatedDuration); err != nil {
			return nil, err
		}
		res = append(res, mt)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMissionTypeTx(ctx context.Context, tx *sql.Tx, id int64, name *string, estimatedDuration *int) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if estimatedDuration != nil {
		fields = append(fields, "estimated_duration=?")
		args = append(args, *estimatedDuration)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE mission_types SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
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

const templateCols = `id,mission_type_id,ord,description,estimated_duration`

func scanTemplate(row *sql.Row) (domain.TaskTemplate, error) {
	var t domain.TaskTemplate
	err := row.Scan(&t.ID, &t.MissionTypeID, &t.Ord, &t.Description, &t.EstimatedDuration)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// ListTemplates returns the templates of one mission type ordered by ord.
func (r Repo) ListTemplates(ctx context.Context, missionTypeID int64) ([]domain.TaskTemplate, error) {
	return r.ListTemplatesTx(ctx, nil, missionTypeID)
}

func (r Repo) ListTemplatesTx(ctx context.Context, tx *sql.Tx, missionTypeID int64) ([]domain.TaskTemplate, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+templateCols+` FROM mission_types_tasks WHERE mission_type_id=? ORDER BY ord, id`, missionTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskTemplate
	for rows.Next() {
		var t domain.TaskTemplate
		if err := rows.Scan(&t.ID, &t.MissionTypeID, &t.Ord, &t.Description, &t.EstimatedDuration); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTemplateTx(ctx context.Context, tx *sql.Tx, id string) (domain.TaskTemplate, error) {
	return scanTemplate(r.on(tx).QueryRowContext(ctx, `SELECT `+templateCols+` FROM mission_types_tasks WHERE id=?`, id))
}

func (r Repo) InsertTemplateTx(ctx context.Context, tx *sql.Tx, t domain.TaskTemplate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_types_tasks(id,mission_type_id,ord,description,estimated_duration) VALUES (?,?,?,?,?)`,
		t.ID, t.MissionTypeID, t.Ord, t.Description, t.EstimatedDuration)
	return err
}

// UpdateTemplateTx edits description and duration. ord is owned by the
// reordering operations and is never touched here.
func (r Repo) UpdateTemplateTx(ctx context.Context, tx *sql.Tx, id string, description *string, estimatedDuration *int) error {
	var (
		fields []string
		args   []any
	)
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, *description)
	}
	if estimatedDuration != nil {
		fields = append(fields, "estimated_duration=?")
		args = append(args, *estimatedDuration)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE mission_types_tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
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

func (r Repo) DeleteTemplateTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM mission_types_tasks WHERE id=?`, id)
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

// SetTemplateOrdTx rewrites ord only if the row still holds the observed
// value. It reports false when another writer got there first.
func (r Repo) SetTemplateOrdTx(ctx context.Context, tx *sql.Tx, id string, observed, ord int) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE mission_types_tasks SET ord=? WHERE id=? AND ord=?`, ord, id, observed)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CountActiveTasksForTypeTx counts in-progress mission tasks on missions of
// the given type.
func (r Repo) CountActiveTasksForTypeTx(ctx context.Context, tx *sql.Tx, missionTypeID int64) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM mission_tasks mt
JOIN missions m ON m.id = mt.mission_id
WHERE m.mission_type_id=? AND mt.status_id=?`, missionTypeID, int(domain.StatusInProgress)).Scan(&n)
	return n, err
}
