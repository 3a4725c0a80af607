package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"missionline/internal/domain"
	"missionline/internal/events"
	"missionline/internal/repo"
)

const (
	maxNameLen     = 100
	maxTypeMinutes = 1440
	dateLayout     = "2006-01-02"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
	NewID  func() string
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, payload); err != nil {
		return domain.PersistenceError{Op: "append " + evtType + " event", Err: err}
	}
	return nil
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.PersistenceError{Op: "begin transaction", Err: err}
	}
	return tx, nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return domain.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// fail wraps store errors in PersistenceError and passes classified errors through.
func fail(op string, err error) error {
	if err == nil || domain.IsClassified(err) {
		return err
	}
	return domain.PersistenceError{Op: op, Err: err}
}

// lookup turns repo.ErrNotFound into a NotFoundError for entity id.
func lookup(entity, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	return fail("load "+entity, err)
}

func validateName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.ValidationError{Field: field, Reason: "is required"}
	}
	if len([]rune(v)) > maxNameLen {
		return "", domain.ValidationError{Field: field, Reason: "must be at most 100 characters"}
	}
	return v, nil
}

func validateMinutes(field string, v, upper int) error {
	if v < 1 {
		return domain.ValidationError{Field: field, Reason: "must be at least 1 minute"}
	}
	if upper > 0 && v > upper {
		return domain.ValidationError{Field: field, Reason: "must be at most 1440 minutes"}
	}
	return nil
}
