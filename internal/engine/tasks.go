package engine

import (
	"context"
	"errors"

	"missionline/internal/domain"
	"missionline/internal/events"
	"missionline/internal/lifecycle"
	"missionline/internal/repo"
)

// TransitionTask reads the task and moves it to target.
func (e Engine) TransitionTask(ctx context.Context, taskID string, target domain.TaskStatus) (domain.MissionTask, error) {
	observed, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.MissionTask{}, lookup("task", taskID, err)
	}
	return e.TransitionFrom(ctx, observed, target)
}

// TransitionExpecting is TransitionTask guarded by the status the caller
// last saw. A task that has moved on fails with ConflictError.
func (e Engine) TransitionExpecting(ctx context.Context, taskID string, expected, target domain.TaskStatus) (domain.MissionTask, error) {
	observed, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.MissionTask{}, lookup("task", taskID, err)
	}
	if observed.Status != expected {
		return domain.MissionTask{}, domain.ConflictError{
			Reason: "task " + taskID + " is " + observed.Status.String() + ", expected " + expected.String(),
		}
	}
	return e.TransitionFrom(ctx, observed, target)
}

// TransitionFrom moves a task from the observed snapshot to target. The
// write only lands if the stored status still matches observed.Status;
// otherwise it fails with ConflictError and nothing changes. Illegal moves
// fail with InvalidTransitionError before any write. Stamps are taken from
// the stored row, never from the snapshot.
func (e Engine) TransitionFrom(ctx context.Context, observed domain.MissionTask, target domain.TaskStatus) (domain.MissionTask, error) {
	now := e.now()
	if _, err := lifecycle.Apply(observed, target, now); err != nil {
		return domain.MissionTask{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.MissionTask{}, err
	}
	defer tx.Rollback()

	cur, err := e.Repo.GetTaskTx(ctx, tx, observed.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.MissionTask{}, domain.NotFoundError{Entity: "task", ID: observed.ID}
	}
	if err != nil {
		return domain.MissionTask{}, fail("load task", err)
	}
	if cur.Status != observed.Status {
		return domain.MissionTask{}, staleTask(observed, cur)
	}
	next, err := lifecycle.Apply(cur, target, now)
	if err != nil {
		return domain.MissionTask{}, err
	}
	ok, err := e.Repo.UpdateTaskStatusTx(ctx, tx, next, cur.Status)
	if err != nil {
		return domain.MissionTask{}, fail("update task status", err)
	}
	if !ok {
		return domain.MissionTask{}, staleTask(observed, cur)
	}
	if err := e.appendEvent(ctx, tx, "task.transitioned", "task", next.ID, events.EventPayload{
		"mission_id": next.MissionID,
		"from":       observed.Status.String(),
		"to":         next.Status.String(),
	}); err != nil {
		return domain.MissionTask{}, err
	}
	if err := commit(tx); err != nil {
		return domain.MissionTask{}, err
	}
	return next, nil
}

func staleTask(observed, cur domain.MissionTask) error {
	return domain.ConflictError{
		Reason: "task " + observed.ID + " is " + cur.Status.String() + ", expected " + observed.Status.String(),
	}
}
