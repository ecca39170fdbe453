package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardHasTarget refuses to start a run without a target.
func guardHasTarget(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.Record != nil && ctx.Record.Target != ""
}
