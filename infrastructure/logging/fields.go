package logging

import (
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// RunID adds a run ID field.
func RunID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("run_id", id)
	}
}

// Target adds the scan target.
func Target(target string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("target", target)
	}
}

// Goal adds a goal id field.
func Goal(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("goal", id)
	}
}

// Turn adds the decision turn number.
func Turn(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("turn", n)
	}
}

// Action adds an action id field.
func Action(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("action", id)
	}
}

// Menu adds the offered action ids.
func Menu(ids []string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("menu", strings.Join(ids, ","))
	}
}

// Status adds a status field.
func Status(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("status", s)
	}
}

// Reason adds a reason field. Planner-authored text is only ever logged here.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Rejection adds the guardrail rejection code.
func Rejection(code string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("rejection", code)
	}
}

// Command adds the display form of an invocation.
func Command(cmd string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("command", cmd)
	}
}

// ExitCode adds a process exit code.
func ExitCode(code int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("exit_code", code)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Budget adds budget-related fields.
func Budget(name string, consumed, limit int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("budget", name).Int("consumed", consumed).Int("limit", limit)
	}
}

// HTTPStatus adds an HTTP response status code.
func HTTPStatus(code int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("http_status", code)
	}
}

// Count adds an integer field with a custom key.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
