// Package lifecycle holds the pure mission rules: task state machine, stamp
// bookkeeping, status aggregation, task instantiation and ord planning.
// Nothing here touches the database.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"missionline/internal/domain"
)

// State ids must stay untyped string constants for statekit.StateID.
const (
	stateNew        = "new"
	stateInProgress = "in_progress"
	statePaused     = "paused"
	stateCompleted  = "completed"
)

const (
	eventStart    = "start"
	eventPause    = "pause"
	eventResume   = "resume"
	eventComplete = "complete"
)

var allStatuses = []domain.TaskStatus{
	domain.StatusNew,
	domain.StatusInProgress,
	domain.StatusPaused,
	domain.StatusCompleted,
}

func init() {
	stateMap := map[string]domain.TaskStatus{
		stateNew:        domain.StatusNew,
		stateInProgress: domain.StatusInProgress,
		statePaused:     domain.StatusPaused,
		stateCompleted:  domain.StatusCompleted,
	}
	for id, status := range stateMap {
		if id != status.String() {
			panic(fmt.Sprintf("task machine state %q does not match status %q", id, status))
		}
	}
}

type taskContext struct {
	TaskID string
}

type taskMachine struct {
	interpreter *statekit.Interpreter[taskContext]
}

func newTaskMachine(taskID string, initial domain.TaskStatus) (*taskMachine, error) {
	if !initial.Valid() {
		return nil, fmt.Errorf("unknown task status %d", initial)
	}
	builder := statekit.NewMachine[taskContext]("mission-task").
		WithInitial(statekit.StateID(initial.String())).
		WithContext(taskContext{TaskID: taskID})

	builder.State(stateNew).
		On(eventStart).Target(stateInProgress).
		Done()

	builder.State(stateInProgress).
		On(eventPause).Target(statePaused).
		On(eventComplete).Target(stateCompleted).
		Done()

	builder.State(statePaused).
		On(eventResume).Target(stateInProgress).
		On(eventComplete).Target(stateCompleted).
		Done()

	// terminal
	builder.State(stateCompleted).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build task machine: %w", err)
	}
	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &taskMachine{interpreter: interpreter}, nil
}

func (m *taskMachine) current() string {
	return string(m.interpreter.State().Value)
}

// send fires event and reports whether the machine moved.
func (m *taskMachine) send(event string) bool {
	before := m.current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	return m.current() != before
}

// eventFor names the event that would carry a task from one status to the
// other. The machine decides whether that event is legal in from.
func eventFor(from, to domain.TaskStatus) string {
	switch to {
	case domain.StatusInProgress:
		if from == domain.StatusPaused {
			return eventResume
		}
		return eventStart
	case domain.StatusPaused:
		return eventPause
	case domain.StatusCompleted:
		return eventComplete
	}
	return ""
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to domain.TaskStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	event := eventFor(from, to)
	if event == "" {
		return false
	}
	m, err := newTaskMachine("", from)
	if err != nil {
		return false
	}
	return m.send(event) && m.current() == to.String()
}

// NextStatuses lists the statuses reachable from from in one step.
func NextStatuses(from domain.TaskStatus) []domain.TaskStatus {
	var out []domain.TaskStatus
	for _, to := range allStatuses {
		if CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}

// Apply moves task to status to and stamps the event at now. The input task
// is not modified. Stamps never move backwards: now is clamped to the latest
// stamp already on the task.
func Apply(task domain.MissionTask, to domain.TaskStatus, now time.Time) (domain.MissionTask, error) {
	invalid := domain.InvalidTransitionError{From: task.Status, To: to}
	if !task.Status.Valid() || !to.Valid() {
		return task, invalid
	}
	event := eventFor(task.Status, to)
	if event == "" {
		return task, invalid
	}
	m, err := newTaskMachine(task.ID, task.Status)
	if err != nil {
		return task, err
	}
	if !m.send(event) || m.current() != to.String() {
		return task, invalid
	}

	at := clampStamp(task, now.UTC())
	next := task
	next.Status = to
	switch event {
	case eventStart:
		next.StartStamp = &at
	case eventPause:
		next.PauseStamp = &at
	case eventResume:
		next.UnpauseStamp = &at
	case eventComplete:
		next.StopStamp = &at
	}
	return next, nil
}

func clampStamp(task domain.MissionTask, now time.Time) time.Time {
	latest := now
	for _, s := range []*time.Time{task.StartStamp, task.PauseStamp, task.UnpauseStamp, task.StopStamp} {
		if s != nil && s.After(latest) {
			latest = *s
		}
	}
	return latest
}
