// Package goal provides goal definitions and the completion evaluator.
package goal

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// Completion selects the predicate that decides when a goal is achieved.
type Completion string

// Completion rules.
const (
	// CompletionFull requires ports, services and OS to be known.
	CompletionFull Completion = "full"

	// CompletionScanOnly requires at least one port scan.
	CompletionScanOnly Completion = "scan_only"

	// CompletionScanServices requires a port scan and service detection.
	CompletionScanServices Completion = "scan_services"
)

// Valid reports whether the completion rule is known.
func (c Completion) Valid() bool {
	switch c {
	case CompletionFull, CompletionScanOnly, CompletionScanServices:
		return true
	}
	return false
}

// UnresponsivePolicy decides how an unresponsive host affects completion.
type UnresponsivePolicy string

// Unresponsive policies.
const (
	// UnresponsiveComplete treats an unresponsive host as goal achieved.
	UnresponsiveComplete UnresponsivePolicy = "complete"

	// UnresponsiveContinue evaluates the completion rule as usual.
	UnresponsiveContinue UnresponsivePolicy = "continue"
)

// Spec describes one reconnaissance goal.
type Spec struct {
	// ID is the stable identifier used by callers.
	ID string `yaml:"id" json:"id"`

	// Label is a short display name.
	Label string `yaml:"label" json:"label"`

	// Description is shown in goal listings.
	Description string `yaml:"description" json:"description"`

	// Text is the task statement given to the decision-maker.
	Text string `yaml:"text" json:"text,omitempty"`

	// IncludesReachability gates scanning behind a liveness check.
	IncludesReachability bool `yaml:"includes_reachability" json:"includes_reachability"`

	// Completion is the achievement rule.
	Completion Completion `yaml:"completion" json:"completion"`

	// OnUnresponsive overrides the rule's default handling of a dead host.
	OnUnresponsive UnresponsivePolicy `yaml:"on_unresponsive,omitempty" json:"on_unresponsive,omitempty"`
}

// Validate checks that the spec is usable.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidGoal)
	}
	if !s.Completion.Valid() {
		return fmt.Errorf("%w: goal %s has unknown completion %q", ErrInvalidGoal, s.ID, s.Completion)
	}
	switch s.OnUnresponsive {
	case "", UnresponsiveComplete, UnresponsiveContinue:
	default:
		return fmt.Errorf("%w: goal %s has unknown on_unresponsive %q", ErrInvalidGoal, s.ID, s.OnUnresponsive)
	}
	return nil
}

// UnresponsivePolicy returns the effective dead-host policy. Goals that do
// not name one complete on an unresponsive host.
func (s Spec) UnresponsivePolicy() UnresponsivePolicy {
	if s.OnUnresponsive != "" {
		return s.OnUnresponsive
	}
	return UnresponsiveComplete
}

// DisplayLabel returns the label, falling back to the id.
func (s Spec) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return s.ID
}

// Prompt returns the task statement for the decision-maker.
func (s Spec) Prompt() string {
	if s.Text != "" {
		return s.Text
	}
	return s.Description
}

// Achieved reports whether the state satisfies the goal. It is pure.
func Achieved(state *scan.State, spec Spec) bool {
	if state.Reachability() == scan.ReachabilityUnresponsive &&
		spec.UnresponsivePolicy() == UnresponsiveComplete {
		return true
	}

	switch spec.Completion {
	case CompletionScanOnly:
		return state.HasExecutedEffect(scan.EffectPortScan)

	case CompletionScanServices:
		return state.HasExecutedEffect(scan.EffectPortScan) &&
			state.HasExecutedEffect(scan.EffectServiceDetect)

	default:
		switch state.Reachability() {
		case scan.ReachabilityUp:
		case scan.ReachabilityUnknown:
			if spec.IncludesReachability {
				return false
			}
		default:
			return false
		}
		d := state.Digest()
		return d.PortsKnown && d.ServicesKnown && d.OSKnown
	}
}
