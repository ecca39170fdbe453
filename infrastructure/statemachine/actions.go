package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// syncStatus mirrors the entered state onto the record. Actions receive a
// pointer to the machine context, which is itself a pointer.
func syncStatus(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).Record == nil {
		return
	}
	if status := statusForEvent(event.Type); status != "" {
		(*ctx).Record.Status = status
	}
}

// recordReason keeps the reason carried by the event payload.
func recordReason(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if payload, ok := event.Payload.(TransitionPayload); ok {
		(*ctx).Reason = payload.Reason
	}
}
