package scan

import (
	"fmt"
	"strings"
)

// Digest summarizes which facts are known about the target.
type Digest struct {
	HostKnown     bool `json:"host_known"`
	PortsKnown    bool `json:"ports_known"`
	ServicesKnown bool `json:"services_known"`
	OSKnown       bool `json:"os_known"`
}

// Snapshot is an immutable copy of a State.
type Snapshot struct {
	Target           string       `json:"target"`
	Reachability     Reachability `json:"reachability"`
	ResolvedAddress  string       `json:"resolved_address,omitempty"`
	ResolvedHostname string       `json:"resolved_hostname,omitempty"`
	OpenPorts        []Port       `json:"open_ports"`
	Services         []Service    `json:"services"`
	OSFingerprinted  bool         `json:"os_fingerprinted"`
	OSGuess          string       `json:"os_guess,omitempty"`
	ActionsExecuted  []string     `json:"actions_executed"`
	InvocationCount  int          `json:"invocation_count"`
	Digest           Digest       `json:"digest"`
}

// Digest derives the knowledge digest from the state.
func (s *State) Digest() Digest {
	return Digest{
		HostKnown:     s.reachability != ReachabilityUnknown,
		PortsKnown:    len(s.openPorts) > 0 || s.HasExecutedEffect(EffectPortScan),
		ServicesKnown: len(s.services) > 0 || s.HasExecutedEffect(EffectServiceDetect),
		OSKnown:       s.osFingerprinted,
	}
}

// Snapshot returns a copy of the state that is safe to retain.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Target:           s.target.String(),
		Reachability:     s.reachability,
		ResolvedAddress:  s.resolvedAddress,
		ResolvedHostname: s.resolvedHostname,
		OpenPorts:        s.OpenPorts(),
		Services:         s.Services(),
		OSFingerprinted:  s.osFingerprinted,
		OSGuess:          s.osGuess,
		ActionsExecuted:  s.ActionsExecuted(),
		InvocationCount:  s.invocations,
		Digest:           s.Digest(),
	}
}

// PromptText renders the state for the decision-maker.
func (s *State) PromptText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Target: %s\n", s.target)
	fmt.Fprintf(&b, "Host reachability: %s\n", s.reachability)
	if s.resolvedAddress != "" {
		fmt.Fprintf(&b, "Host address: %s\n", s.resolvedAddress)
	}
	if s.resolvedHostname != "" {
		fmt.Fprintf(&b, "Hostname: %s\n", s.resolvedHostname)
	}

	ports := s.OpenPorts()
	if len(ports) == 0 {
		b.WriteString("Open ports: none\n")
	} else {
		parts := make([]string, len(ports))
		for i, p := range ports {
			parts[i] = fmt.Sprintf("%d/%s", p.Number, p.Protocol)
		}
		fmt.Fprintf(&b, "Open ports: %s\n", strings.Join(parts, ", "))
	}
	for _, svc := range s.Services() {
		fmt.Fprintf(&b, "  %d/%s: %s\n", svc.Port, svc.Protocol, svc.Describe())
	}
	if s.osGuess != "" {
		fmt.Fprintf(&b, "OS guess: %s\n", s.osGuess)
	}

	d := s.Digest()
	fmt.Fprintf(&b, "Goal progress: host_known=%t ports_known=%t services_known=%t os_known=%t\n",
		d.HostKnown, d.PortsKnown, d.ServicesKnown, d.OSKnown)
	if s.lastPlan != "" {
		fmt.Fprintf(&b, "Your previous plan: %s\n", s.lastPlan)
	}
	fmt.Fprintf(&b, "Scans run: %s", strings.Join(s.ActionsExecuted(), ", "))

	return b.String()
}

// Describe renders the service as "name product version".
func (s Service) Describe() string {
	var parts []string
	if s.Name != "" {
		parts = append(parts, s.Name)
	}
	if s.Product != "" && s.Product != s.Name {
		parts = append(parts, s.Product)
	}
	if s.Version != "" {
		parts = append(parts, s.Version)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}
