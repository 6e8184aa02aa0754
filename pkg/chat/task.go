package chat

import (
	"context"
	"errors"
)

// ErrUnreachableOrInvalidResponse is the only error a failed turn reports.
// The underlying cause is wrapped alongside it.
var ErrUnreachableOrInvalidResponse = errors.New("unreachable or invalid response")

type Outcome int

const (
	OutcomeRendered Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeRendered {
		return "rendered"
	}
	return "failed"
}

// Result is what a completed turn produced.
type Result struct {
	Outcome Outcome
	Message string
	Answer  string
	Err     error
}

func (r Result) OK() bool { return r.Outcome == OutcomeRendered }

// Task tracks one in-flight turn. Done is closed only after the display
// affordances have been reset.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{done: make(chan struct{}), cancel: cancel}
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the turn has completed.
func (t *Task) Wait() Result {
	<-t.done
	return t.result
}

// Result returns the outcome without blocking. ok is false while the turn is
// still awaiting its response.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}

// Cancel aborts the remote call. The turn still completes, on the failure
// path.
func (t *Task) Cancel() { t.cancel() }
