// Package guardrail validates untrusted decision-maker replies against the
// current action menu.
package guardrail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recon-go/domain/action"
)

// Code classifies a rejection.
type Code string

// Rejection codes, in the order checks are applied.
const (
	CodeEmpty           Code = "empty_reply"
	CodeNotJSON         Code = "not_json"
	CodeNotObject       Code = "not_object"
	CodeMissingActionID Code = "missing_action_id"
	CodeOffMenu         Code = "off_menu"
	CodeInvalidParams   Code = "invalid_params"
)

// Rejection is returned when a reply fails validation. A rejected reply
// produces a no-op turn.
type Rejection struct {
	Code   Code
	Detail string
}

// Error implements error.
func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "reply rejected: " + string(r.Code)
	}
	return fmt.Sprintf("reply rejected: %s: %s", r.Code, r.Detail)
}

func reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Decision is an accepted reply.
type Decision struct {
	// ActionID is a member of the menu the reply was checked against.
	ActionID action.ID

	// Params are validated parameters for the action.
	Params action.Params

	// Reason, Reasoning and Plan are audit text. They never drive control flow.
	Reason    string
	Reasoning string
	Plan      string
}

// paramAliases maps accepted parameter keys to their canonical names.
var paramAliases = []struct{ key, canonical string }{
	{"range", action.ParamRange},
	{"port_range", action.ParamRange},
	{"scope", action.ParamScope},
}

// Validate parses a raw reply and checks it against the menu. Checks run in a
// fixed order and stop at the first failure. The returned error is always a
// *Rejection.
func Validate(reply string, menu action.Menu) (Decision, error) {
	text := strings.TrimSpace(reply)
	if text == "" {
		return Decision{}, reject(CodeEmpty, "reply is empty")
	}

	line := firstLine(stripFence(text))
	if line == "" {
		return Decision{}, reject(CodeEmpty, "reply has no content inside the code fence")
	}

	var raw any
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Decision{}, reject(CodeNotJSON, "%v", err)
	}
	if dec.More() {
		return Decision{}, reject(CodeNotJSON, "trailing data after JSON value")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Decision{}, reject(CodeNotObject, "reply is not a JSON object")
	}

	id, ok := obj["action_id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return Decision{}, reject(CodeMissingActionID, "action_id must be a non-empty string")
	}
	if !menu.Contains(id) {
		return Decision{}, reject(CodeOffMenu, "%q is not in %s", id, menu.Literal())
	}

	params, err := extractParams(obj)
	if err != nil {
		return Decision{}, err
	}
	validated, err := validateParams(action.ID(id), params)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		ActionID:  action.ID(id),
		Params:    validated,
		Reason:    optionalString(obj, "reason"),
		Reasoning: optionalString(obj, "reasoning"),
		Plan:      optionalString(obj, "plan"),
	}, nil
}

// stripFence removes one enclosing markdown code fence and its language tag.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(tag, "{[\"") {
			body = body[nl+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

// extractParams collects every raw value given for each canonical parameter,
// from a nested "params" object and from top-level keys.
func extractParams(obj map[string]any) (map[string][]any, error) {
	out := make(map[string][]any)

	collect := func(src map[string]any) {
		for _, alias := range paramAliases {
			if v, present := src[alias.key]; present && v != nil {
				out[alias.canonical] = append(out[alias.canonical], v)
			}
		}
	}

	if nested, present := obj["params"]; present && nested != nil {
		m, ok := nested.(map[string]any)
		if !ok {
			return nil, reject(CodeInvalidParams, "params must be an object")
		}
		collect(m)
	}
	collect(obj)
	return out, nil
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case json.Number:
		return val.String(), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

// resolveParam normalizes every value given for key. Any malformed value
// rejects the reply, and so do two values that normalize differently.
func resolveParam(params map[string][]any, key string, normalize func(string) (string, error)) (string, bool, error) {
	values := params[key]
	if len(values) == 0 {
		return "", false, nil
	}

	var resolved string
	for i, v := range values {
		raw, err := scalarString(v)
		if err != nil {
			return "", false, reject(CodeInvalidParams, "%s: %v", key, err)
		}
		norm, err := normalize(raw)
		if err != nil {
			return "", false, reject(CodeInvalidParams, "%s: %v", key, err)
		}
		if i > 0 && norm != resolved {
			return "", false, reject(CodeInvalidParams, "%s given twice with different values (%q, %q)", key, resolved, norm)
		}
		resolved = norm
	}
	return resolved, true, nil
}

func normalizeRange(expr string) (string, error) {
	canonical, _, err := action.ParsePortRange(expr)
	return canonical, err
}

func normalizeScope(scope string) (string, error) {
	scope = strings.ToLower(scope)
	switch scope {
	case "", action.ScopeAll, action.ScopeCommon:
		return scope, nil
	}
	return "", fmt.Errorf("must be %q or %q", action.ScopeAll, action.ScopeCommon)
}

// validateParams checks the parameters the action understands. Others are
// ignored.
func validateParams(id action.ID, params map[string][]any) (action.Params, error) {
	switch id {
	case action.PortScan:
		expr, ok, err := resolveParam(params, action.ParamRange, normalizeRange)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, reject(CodeInvalidParams, "port_scan requires range")
		}
		return action.Params{action.ParamRange: expr}, nil

	case action.ServiceDetect:
		scope, ok, err := resolveParam(params, action.ParamScope, normalizeScope)
		if err != nil {
			return nil, err
		}
		if !ok || scope == "" {
			return action.Params{}, nil
		}
		return action.Params{action.ParamScope: scope}, nil

	default:
		return action.Params{}, nil
	}
}

func optionalString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// Compact normalizes a reply for logging.
func Compact(reply string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(strings.TrimSpace(reply))); err == nil {
		return buf.String()
	}
	return strings.Join(strings.Fields(reply), " ")
}
