package statemachine

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState run.Status
	Reason  string
}

// Interpreter wraps the statekit interpreter for one run. It is safe for
// concurrent use so control surfaces can read the status while the engine
// drives it.
type Interpreter struct {
	mu     sync.RWMutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter for the run machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.interp.Start()
	if i.ctx.Record != nil {
		i.ctx.Record.Status = run.Status(i.interp.State().Value)
	}
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interp.Stop()
}

// State returns the current status.
func (i *Interpreter) State() run.Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return run.Status(i.interp.State().Value)
}

// Transition moves the run to the target status. Transitions the chart
// does not allow leave the state unchanged and return an error.
func (i *Interpreter) Transition(to run.Status, reason string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := run.Status(i.interp.State().Value)
	i.interp.Send(statekit.Event{
		Type:    EventFor(to),
		Payload: TransitionPayload{ToState: to, Reason: reason},
	})

	if got := run.Status(i.interp.State().Value); got != to {
		return fmt.Errorf("transition from %s to %s not allowed", from, to)
	}
	return nil
}

// IsTerminal reports whether the run has ended.
func (i *Interpreter) IsTerminal() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.interp.Done()
}

// Reason returns the reason given with the last transition.
func (i *Interpreter) Reason() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ctx.Reason
}

// Matches checks if the current state matches the given status.
func (i *Interpreter) Matches(status run.Status) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.interp.Matches(statekit.StateID(status))
}
