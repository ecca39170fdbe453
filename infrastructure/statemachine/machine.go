// Package statemachine drives the run lifecycle with a statekit statechart.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// Context carries the run record through the state machine.
type Context struct {
	Record *run.Record
	Reason string
}

// NewContext creates a new machine context.
func NewContext(record *run.Record) *Context {
	return &Context{Record: record}
}

const (
	stateIdle    statekit.StateID = statekit.StateID(run.StatusIdle)
	stateRunning statekit.StateID = statekit.StateID(run.StatusRunning)
	stateDone    statekit.StateID = statekit.StateID(run.StatusDone)
	stateBudget  statekit.StateID = statekit.StateID(run.StatusBudget)
	stateError   statekit.StateID = statekit.StateID(run.StatusError)
)

// Lifecycle events.
const (
	EventStart   = "START"
	EventFinish  = "FINISH"
	EventExhaust = "EXHAUST"
	EventFail    = "FAIL"
)

// NewRunMachine creates the run lifecycle statechart:
// idle -> running -> done | budget | error. A run may also fail from idle
// when a precondition does not hold.
func NewRunMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("scan_run").
		WithInitial(stateIdle).
		WithContext(&Context{}).
		WithAction("syncStatus", syncStatus).
		WithAction("recordReason", recordReason).
		WithGuard("hasTarget", guardHasTarget).
		State(stateIdle).
			OnEntry("syncStatus").
			On(EventStart).Target(stateRunning).Guard("hasTarget").Do("recordReason").
			On(EventFail).Target(stateError).Do("recordReason").
			Done().
		State(stateRunning).
			OnEntry("syncStatus").
			On(EventFinish).Target(stateDone).Do("recordReason").
			On(EventExhaust).Target(stateBudget).Do("recordReason").
			On(EventFail).Target(stateError).Do("recordReason").
			Done().
		State(stateDone).
			Final().
			OnEntry("syncStatus").
			Done().
		State(stateBudget).
			Final().
			OnEntry("syncStatus").
			Done().
		State(stateError).
			Final().
			OnEntry("syncStatus").
			Done().
		Build()
}

// EventFor returns the event that moves a run into status.
func EventFor(status run.Status) statekit.EventType {
	switch status {
	case run.StatusRunning:
		return EventStart
	case run.StatusDone:
		return EventFinish
	case run.StatusBudget:
		return EventExhaust
	case run.StatusError:
		return EventFail
	default:
		return statekit.EventType(status)
	}
}

// statusForEvent is the inverse of EventFor.
func statusForEvent(eventType statekit.EventType) run.Status {
	switch eventType {
	case EventStart:
		return run.StatusRunning
	case EventFinish:
		return run.StatusDone
	case EventExhaust:
		return run.StatusBudget
	case EventFail:
		return run.StatusError
	default:
		return ""
	}
}
