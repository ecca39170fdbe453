package scan

import (
	"sort"
	"strings"
)

// Reachability is the liveness verdict for the target.
type Reachability string

// Reachability values. A state moves out of ReachabilityUnknown at most once.
const (
	ReachabilityUnknown      Reachability = "unknown"
	ReachabilityUp           Reachability = "up"
	ReachabilityUnresponsive Reachability = "unresponsive"
)

// Effect classifies what an executed action contributes to the state.
type Effect uint8

// Effects of executed actions.
const (
	EffectNone Effect = 0
	// EffectReachability marks the liveness check.
	EffectReachability Effect = 1 << iota
	// EffectPortScan marks any port-scan variant.
	EffectPortScan
	// EffectServiceDetect marks service and version detection.
	EffectServiceDetect
	// EffectOSDetect marks OS fingerprinting.
	EffectOSDetect
)

// Has reports whether e includes all bits of other.
func (e Effect) Has(other Effect) bool {
	return other != EffectNone && e&other == other
}

// Port is an open (port, protocol) pair.
type Port struct {
	Number   int    `json:"port"`
	Protocol string `json:"protocol"`
}

// Service describes what was detected listening on a port.
type Service struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Name     string `json:"name,omitempty"`
	Product  string `json:"product,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Key returns the dedup key of the service.
func (s Service) Key() Port {
	return Port{Number: s.Port, Protocol: s.Protocol}
}

// richness counts the populated descriptive fields.
func (s Service) richness() int {
	n := 0
	for _, f := range []string{s.Name, s.Product, s.Version} {
		if f != "" {
			n++
		}
	}
	return n
}

// ExecutedAction is one entry of the append-only action history.
type ExecutedAction struct {
	ID     string `json:"id"`
	Effect Effect `json:"effect"`
}

// State is the accumulated knowledge about one target.
// It is owned by a single run; only Merge mutates it.
type State struct {
	target           Target
	reachability     Reachability
	resolvedAddress  string
	resolvedHostname string
	openPorts        map[Port]struct{}
	services         map[Port]Service
	osFingerprinted  bool
	osGuess          string
	executed         []ExecutedAction
	invocations      int
	lastPlan         string
}

// NewState creates the initial state for a target.
func NewState(target Target) *State {
	return &State{
		target:       target,
		reachability: ReachabilityUnknown,
		openPorts:    make(map[Port]struct{}),
		services:     make(map[Port]Service),
	}
}

// Target returns the target the state describes.
func (s *State) Target() Target { return s.target }

// Reachability returns the liveness verdict.
func (s *State) Reachability() Reachability { return s.reachability }

// ResolvedAddress returns the address reported by the scanner, if any.
func (s *State) ResolvedAddress() string { return s.resolvedAddress }

// ResolvedHostname returns the hostname reported by the scanner, if any.
func (s *State) ResolvedHostname() string { return s.resolvedHostname }

// OSFingerprinted reports whether OS detection ran, regardless of its result.
func (s *State) OSFingerprinted() bool { return s.osFingerprinted }

// OSGuess returns the best OS match, if any.
func (s *State) OSGuess() string { return s.osGuess }

// InvocationCount returns the number of external tool invocations.
func (s *State) InvocationCount() int { return s.invocations }

// LastPlan returns the plan text echoed from the last accepted reply.
func (s *State) LastPlan() string { return s.lastPlan }

// SetLastPlan stores the decision-maker's plan for the next snapshot.
// The plan is display text only and never drives control flow.
func (s *State) SetLastPlan(plan string) {
	s.lastPlan = strings.TrimSpace(plan)
}

// OpenPorts returns the open ports ordered by protocol then number.
func (s *State) OpenPorts() []Port {
	ports := make([]Port, 0, len(s.openPorts))
	for p := range s.openPorts {
		ports = append(ports, p)
	}
	sortPorts(ports)
	return ports
}

// Services returns detected services ordered by protocol then port.
func (s *State) Services() []Service {
	out := make([]Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool {
		return portLess(out[i].Key(), out[j].Key())
	})
	return out
}

// ActionsExecuted returns the ids of executed actions in order.
func (s *State) ActionsExecuted() []string {
	ids := make([]string, len(s.executed))
	for i, a := range s.executed {
		ids[i] = a.ID
	}
	return ids
}

// HasExecuted reports whether the action id appears in the history.
func (s *State) HasExecuted(id string) bool {
	for _, a := range s.executed {
		if a.ID == id {
			return true
		}
	}
	return false
}

// HasExecutedEffect reports whether any executed action carried the effect.
func (s *State) HasExecutedEffect(effect Effect) bool {
	for _, a := range s.executed {
		if a.Effect.Has(effect) {
			return true
		}
	}
	return false
}

func (s *State) setReachability(r Reachability) bool {
	if s.reachability != ReachabilityUnknown || r == ReachabilityUnknown {
		return false
	}
	s.reachability = r
	return true
}

func (s *State) setIdentity(address, hostname string) {
	if s.resolvedAddress == "" && address != "" {
		s.resolvedAddress = address
	}
	if s.resolvedHostname == "" && hostname != "" {
		s.resolvedHostname = hostname
	}
}

func (s *State) addOpenPort(p Port) bool {
	if p.Number < 1 || p.Number > 65535 {
		return false
	}
	if _, ok := s.openPorts[p]; ok {
		return false
	}
	s.openPorts[p] = struct{}{}
	return true
}

func (s *State) upsertService(svc Service) bool {
	key := svc.Key()
	if key.Number < 1 || key.Number > 65535 {
		return false
	}
	if existing, ok := s.services[key]; ok && svc.richness() <= existing.richness() {
		return false
	}
	s.services[key] = svc
	return true
}

func (s *State) record(id string, effect Effect) {
	s.executed = append(s.executed, ExecutedAction{ID: id, Effect: effect})
}

func sortPorts(ports []Port) {
	sort.Slice(ports, func(i, j int) bool {
		return portLess(ports[i], ports[j])
	})
}

func portLess(a, b Port) bool {
	if a.Protocol != b.Protocol {
		return a.Protocol < b.Protocol
	}
	return a.Number < b.Number
}
