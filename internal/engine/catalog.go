package engine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"missionline/internal/config"
	"missionline/internal/domain"
	"missionline/internal/events"
	"missionline/internal/lifecycle"
	"missionline/internal/repo"
)

func typeKey(id int64) string { return strconv.FormatInt(id, 10) }

func (e Engine) CreateMissionType(ctx context.Context, name string, estimatedDuration int) (domain.MissionType, error) {
	name, err := validateName("name", name)
	if err != nil {
		return domain.MissionType{}, err
	}
	if err := validateMinutes("estimated_duration", estimatedDuration, maxTypeMinutes); err != nil {
		return domain.MissionType{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.MissionType{}, err
	}
	defer tx.Rollback()

	mt, err := e.createMissionTypeTx(ctx, tx, name, estimatedDuration)
	if err != nil {
		return domain.MissionType{}, err
	}
	if err := commit(tx); err != nil {
		return domain.MissionType{}, err
	}
	return mt, nil
}

func (e Engine) createMissionTypeTx(ctx context.Context, tx *sql.Tx, name string, estimatedDuration int) (domain.MissionType, error) {
	if _, err := e.Repo.GetMissionTypeByNameTx(ctx, tx, name); err == nil {
		return domain.MissionType{}, domain.ConflictError{Reason: "mission type " + strconv.Quote(name) + " already exists"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.MissionType{}, fail("load mission type", err)
	}
	id, err := e.Repo.InsertMissionTypeTx(ctx, tx, name, estimatedDuration)
	if err != nil {
		return domain.MissionType{}, fail("insert mission type", err)
	}
	mt := domain.MissionType{ID: id, Name: name, EstimatedDuration: estimatedDuration}
	if err := e.appendEvent(ctx, tx, "mission_type.created", "mission_type", typeKey(id), events.EventPayload{
		"name": name, "estimated_duration": estimatedDuration,
	}); err != nil {
		return domain.MissionType{}, err
	}
	return mt, nil
}

// MissionTypeUpdate carries optional changes; nil fields are left alone.
type MissionTypeUpdate struct {
	Name              *string
	EstimatedDuration *int
}

// UpdateMissionType edits a type. Missions created earlier keep the duration
// they copied at creation.
func (e Engine) UpdateMissionType(ctx context.Context, id int64, upd MissionTypeUpdate) (domain.MissionType, error) {
	if upd.Name != nil {
		name, err := validateName("name", *upd.Name)
		if err != nil {
			return domain.MissionType{}, err
		}
		upd.Name = &name
	}
	if upd.EstimatedDuration != nil {
		if err := validateMinutes("estimated_duration", *upd.EstimatedDuration, maxTypeMinutes); err != nil {
			return domain.MissionType{}, err
		}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.MissionType{}, err
	}
	defer tx.Rollback()

	cur, err := e.Repo.GetMissionTypeTx(ctx, tx, id)
	if err != nil {
		return domain.MissionType{}, lookup("mission type", typeKey(id), err)
	}
	if upd.Name != nil && *upd.Name != cur.Name {
		other, err := e.Repo.GetMissionTypeByNameTx(ctx, tx, *upd.Name)
		if err == nil && other.ID != id {
			return domain.MissionType{}, domain.ConflictError{Reason: "mission type " + strconv.Quote(*upd.Name) + " already exists"}
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.MissionType{}, fail("load mission type", err)
		}
	}
	if err := e.Repo.UpdateMissionTypeTx(ctx, tx, id, upd.Name, upd.EstimatedDuration); err != nil {
		return domain.MissionType{}, lookup("mission type", typeKey(id), err)
	}
	next, err := e.Repo.GetMissionTypeTx(ctx, tx, id)
	if err != nil {
		return domain.MissionType{}, lookup("mission type", typeKey(id), err)
	}
	if err := e.appendEvent(ctx, tx, "mission_type.updated", "mission_type", typeKey(id), events.EventPayload{
		"from": cur, "to": next,
	}); err != nil {
		return domain.MissionType{}, err
	}
	if err := commit(tx); err != nil {
		return domain.MissionType{}, err
	}
	return next, nil
}

func (e Engine) GetMissionType(ctx context.Context, id int64) (domain.MissionType, error) {
	mt, err := e.Repo.GetMissionType(ctx, id)
	if err != nil {
		return domain.MissionType{}, lookup("mission type", typeKey(id), err)
	}
	return mt, nil
}

func (e Engine) ListMissionTypes(ctx context.Context) ([]domain.MissionType, error) {
	res, err := e.Repo.ListMissionTypes(ctx)
	return res, fail("list mission types", err)
}

// ListTemplates returns a mission type's templates in ord order.
func (e Engine) ListTemplates(ctx context.Context, missionTypeID int64) ([]domain.TaskTemplate, error) {
	if _, err := e.GetMissionType(ctx, missionTypeID); err != nil {
		return nil, err
	}
	res, err := e.Repo.ListTemplates(ctx, missionTypeID)
	return res, fail("list templates", err)
}

// AddTemplate appends a template after the current last one.
func (e Engine) AddTemplate(ctx context.Context, missionTypeID int64, description string, estimatedDuration int) (domain.TaskTemplate, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.TaskTemplate{}, domain.ValidationError{Field: "description", Reason: "is required"}
	}
	if err := validateMinutes("estimated_duration", estimatedDuration, 0); err != nil {
		return domain.TaskTemplate{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	t, err := e.addTemplateTx(ctx, tx, missionTypeID, description, estimatedDuration)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := commit(tx); err != nil {
		return domain.TaskTemplate{}, err
	}
	return t, nil
}

func (e Engine) addTemplateTx(ctx context.Context, tx *sql.Tx, missionTypeID int64, description string, estimatedDuration int) (domain.TaskTemplate, error) {
	if _, err := e.Repo.GetMissionTypeTx(ctx, tx, missionTypeID); err != nil {
		return domain.TaskTemplate{}, lookup("mission type", typeKey(missionTypeID), err)
	}
	siblings, err := e.Repo.ListTemplatesTx(ctx, tx, missionTypeID)
	if err != nil {
		return domain.TaskTemplate{}, fail("list templates", err)
	}
	t := domain.TaskTemplate{
		ID:                e.newID(),
		MissionTypeID:     missionTypeID,
		Ord:               lifecycle.NextOrd(siblings),
		Description:       description,
		EstimatedDuration: estimatedDuration,
	}
	if err := e.Repo.InsertTemplateTx(ctx, tx, t); err != nil {
		return domain.TaskTemplate{}, fail("insert template", err)
	}
	if err := e.appendEvent(ctx, tx, "template.added", "template", t.ID, events.EventPayload{
		"mission_type_id": missionTypeID, "ord": t.Ord, "description": t.Description, "estimated_duration": t.EstimatedDuration,
	}); err != nil {
		return domain.TaskTemplate{}, err
	}
	return t, nil
}

// TemplateUpdate carries optional changes; nil fields are left alone.
type TemplateUpdate struct {
	Description       *string
	EstimatedDuration *int
}

// UpdateTemplate edits a template in place. Mission tasks already copied
// from it are unaffected.
func (e Engine) UpdateTemplate(ctx context.Context, id string, upd TemplateUpdate) (domain.TaskTemplate, error) {
	if upd.Description != nil {
		d := strings.TrimSpace(*upd.Description)
		if d == "" {
			return domain.TaskTemplate{}, domain.ValidationError{Field: "description", Reason: "is required"}
		}
		upd.Description = &d
	}
	if upd.EstimatedDuration != nil {
		if err := validateMinutes("estimated_duration", *upd.EstimatedDuration, 0); err != nil {
			return domain.TaskTemplate{}, err
		}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTemplateTx(ctx, tx, id, upd.Description, upd.EstimatedDuration); err != nil {
		return domain.TaskTemplate{}, lookup("template", id, err)
	}
	t, err := e.Repo.GetTemplateTx(ctx, tx, id)
	if err != nil {
		return domain.TaskTemplate{}, lookup("template", id, err)
	}
	if err := e.appendEvent(ctx, tx, "template.updated", "template", id, events.EventPayload{
		"description": t.Description, "estimated_duration": t.EstimatedDuration,
	}); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := commit(tx); err != nil {
		return domain.TaskTemplate{}, err
	}
	return t, nil
}

// DeleteTemplate removes a template and closes the gap in its type's ords.
// The in-progress check runs in the same transaction as the delete.
func (e Engine) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTemplateTx(ctx, tx, id)
	if err != nil {
		return lookup("template", id, err)
	}
	active, err := e.Repo.CountActiveTasksForTypeTx(ctx, tx, t.MissionTypeID)
	if err != nil {
		return fail("check active missions", err)
	}
	if active > 0 {
		return domain.ConflictError{Reason: "mission type " + typeKey(t.MissionTypeID) + " has tasks in progress"}
	}
	if err := e.Repo.DeleteTemplateTx(ctx, tx, id); err != nil {
		return lookup("template", id, err)
	}
	changes, err := e.renumberTx(ctx, tx, t.MissionTypeID)
	if err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, "template.deleted", "template", id, events.EventPayload{
		"mission_type_id": t.MissionTypeID, "ord": t.Ord, "renumbered": changes,
	}); err != nil {
		return err
	}
	return commit(tx)
}

// MoveTemplate swaps a template with its neighbour in direction d. Moving the
// first template up or the last one down changes nothing.
func (e Engine) MoveTemplate(ctx context.Context, id string, d lifecycle.Direction) (domain.TaskTemplate, error) {
	if _, err := lifecycle.ParseDirection(string(d)); err != nil {
		return domain.TaskTemplate{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTemplateTx(ctx, tx, id)
	if err != nil {
		return domain.TaskTemplate{}, lookup("template", id, err)
	}
	siblings, err := e.Repo.ListTemplatesTx(ctx, tx, t.MissionTypeID)
	if err != nil {
		return domain.TaskTemplate{}, fail("list templates", err)
	}
	if !lifecycle.Dense(siblings) {
		if err := e.renumberLoggedTx(ctx, tx, t.MissionTypeID); err != nil {
			return domain.TaskTemplate{}, err
		}
		if t, err = e.Repo.GetTemplateTx(ctx, tx, id); err != nil {
			return domain.TaskTemplate{}, lookup("template", id, err)
		}
		if siblings, err = e.Repo.ListTemplatesTx(ctx, tx, t.MissionTypeID); err != nil {
			return domain.TaskTemplate{}, fail("list templates", err)
		}
	}
	other, ok := lifecycle.Neighbor(siblings, t, d)
	if !ok {
		return t, commit(tx)
	}

	// ord is unique per type, so t parks on a negative ord during the swap.
	steps := []struct {
		id       string
		observed int
		to       int
	}{
		{t.ID, t.Ord, -t.Ord},
		{other.ID, other.Ord, t.Ord},
		{t.ID, -t.Ord, other.Ord},
	}
	for _, s := range steps {
		ok, err := e.Repo.SetTemplateOrdTx(ctx, tx, s.id, s.observed, s.to)
		if err != nil {
			return domain.TaskTemplate{}, fail("move template", err)
		}
		if !ok {
			return domain.TaskTemplate{}, domain.ConflictError{Reason: "template " + s.id + " was reordered concurrently"}
		}
	}
	if err := e.appendEvent(ctx, tx, "template.moved", "template", t.ID, events.EventPayload{
		"direction": string(d), "from": t.Ord, "to": other.Ord, "swapped_with": other.ID,
	}); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := commit(tx); err != nil {
		return domain.TaskTemplate{}, err
	}
	t.Ord = other.Ord
	return t, nil
}

// Renumber rewrites a type's template ords to 1..N keeping relative order.
// A dense set is left untouched.
func (e Engine) Renumber(ctx context.Context, missionTypeID int64) ([]domain.TaskTemplate, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetMissionTypeTx(ctx, tx, missionTypeID); err != nil {
		return nil, lookup("mission type", typeKey(missionTypeID), err)
	}
	if err := e.renumberLoggedTx(ctx, tx, missionTypeID); err != nil {
		return nil, err
	}
	res, err := e.Repo.ListTemplatesTx(ctx, tx, missionTypeID)
	if err != nil {
		return nil, fail("list templates", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return res, nil
}

// renumberLoggedTx renumbers and records templates.renumbered when any row moved.
func (e Engine) renumberLoggedTx(ctx context.Context, tx *sql.Tx, missionTypeID int64) error {
	changes, err := e.renumberTx(ctx, tx, missionTypeID)
	if err != nil || changes == 0 {
		return err
	}
	return e.appendEvent(ctx, tx, "templates.renumbered", "mission_type", typeKey(missionTypeID), events.EventPayload{
		"changes": changes,
	})
}

// renumberTx applies lifecycle.RenumberPlan in two passes so the unique
// (mission_type_id, ord) index never sees a duplicate.
func (e Engine) renumberTx(ctx context.Context, tx *sql.Tx, missionTypeID int64) (int, error) {
	templates, err := e.Repo.ListTemplatesTx(ctx, tx, missionTypeID)
	if err != nil {
		return 0, fail("list templates", err)
	}
	plan := lifecycle.RenumberPlan(templates)
	for _, c := range plan {
		ok, err := e.Repo.SetTemplateOrdTx(ctx, tx, c.ID, c.From, -c.To)
		if err != nil {
			return 0, fail("renumber templates", err)
		}
		if !ok {
			return 0, domain.ConflictError{Reason: "template " + c.ID + " was reordered concurrently"}
		}
	}
	for _, c := range plan {
		ok, err := e.Repo.SetTemplateOrdTx(ctx, tx, c.ID, -c.To, c.To)
		if err != nil {
			return 0, fail("renumber templates", err)
		}
		if !ok {
			return 0, domain.ConflictError{Reason: "template " + c.ID + " was reordered concurrently"}
		}
	}
	return len(plan), nil
}

// ImportCatalog seeds mission types and their templates in one transaction.
// Types that already exist by name are skipped. It returns the number of
// types created.
func (e Engine) ImportCatalog(ctx context.Context, catalog []config.MissionTypeSpec) (int, error) {
	if len(catalog) == 0 {
		return 0, nil
	}
	for i, spec := range catalog {
		if _, err := validateName("catalog["+strconv.Itoa(i)+"].name", spec.Name); err != nil {
			return 0, err
		}
		if err := validateMinutes("catalog["+strconv.Itoa(i)+"].estimated_duration", spec.EstimatedDuration, maxTypeMinutes); err != nil {
			return 0, err
		}
		for j, task := range spec.Tasks {
			field := "catalog[" + strconv.Itoa(i) + "].tasks[" + strconv.Itoa(j) + "]"
			if strings.TrimSpace(task.Description) == "" {
				return 0, domain.ValidationError{Field: field + ".description", Reason: "is required"}
			}
			if err := validateMinutes(field+".estimated_duration", task.EstimatedDuration, 0); err != nil {
				return 0, err
			}
		}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	created := 0
	var names []string
	for _, spec := range catalog {
		name := strings.TrimSpace(spec.Name)
		if _, err := e.Repo.GetMissionTypeByNameTx(ctx, tx, name); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return 0, fail("load mission type", err)
		}
		mt, err := e.createMissionTypeTx(ctx, tx, name, spec.EstimatedDuration)
		if err != nil {
			return 0, err
		}
		for _, task := range spec.Tasks {
			if _, err := e.addTemplateTx(ctx, tx, mt.ID, strings.TrimSpace(task.Description), task.EstimatedDuration); err != nil {
				return 0, err
			}
		}
		created++
		names = append(names, name)
	}
	if created > 0 {
		if err := e.appendEvent(ctx, tx, "catalog.imported", "catalog", "", events.EventPayload{"mission_types": names}); err != nil {
			return 0, err
		}
	}
	if err := commit(tx); err != nil {
		return 0, err
	}
	return created, nil
}
