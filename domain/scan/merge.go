package scan

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Result is the outcome of one turn's effect, ready to be folded into a State.
type Result struct {
	// ActionID is the catalog id of the action.
	ActionID string

	// Effect classifies the action.
	Effect Effect

	// Invoked is true when an external tool actually ran.
	Invoked bool

	// Simulated marks a dry-run result: the action is recorded but no
	// evidence is interpreted.
	Simulated bool

	// Output is the raw XML produced by the tool, possibly partial or empty.
	Output string
}

// Change reports what a merge added to the state.
type Change struct {
	ReachabilitySet bool
	NewPorts        []Port
	NewServices     []Service
	OSGuess         string
	ParseError      error
}

// Merge folds a result into the state. It is the only writer of State.
// Absent or unparseable output leaves the sets untouched; the action id is
// appended in every case.
func Merge(state *State, r Result) Change {
	var change Change

	if r.Simulated {
		state.record(r.ActionID, r.Effect)
		return change
	}

	if r.Invoked {
		state.invocations++
	}
	if r.Effect.Has(EffectOSDetect) {
		state.osFingerprinted = true
	}

	run, err := ParseXML(r.Output)
	if err != nil {
		change.ParseError = err
	}

	if r.Effect.Has(EffectReachability) {
		verdict := ReachabilityUnresponsive
		if run != nil && len(run.Hosts) > 0 && strings.EqualFold(run.Hosts[0].Status.State, "up") {
			verdict = ReachabilityUp
		}
		change.ReachabilitySet = state.setReachability(verdict)
	}

	if run != nil && len(run.Hosts) > 0 {
		host := run.Hosts[0]
		state.setIdentity(host.primaryAddress(), host.primaryHostname())

		if r.Effect.Has(EffectPortScan) || r.Effect.Has(EffectServiceDetect) {
			for _, h := range run.Hosts {
				for _, p := range h.Ports {
					port, ok := p.open()
					if !ok {
						continue
					}
					if state.addOpenPort(port) {
						change.NewPorts = append(change.NewPorts, port)
					}
					if !r.Effect.Has(EffectServiceDetect) || p.Service == nil {
						continue
					}
					svc := p.Service.toService(port)
					if state.upsertService(svc) {
						change.NewServices = append(change.NewServices, svc)
					}
				}
			}
		}

		if r.Effect.Has(EffectOSDetect) {
			if guess := host.bestOSMatch(); guess != "" && state.osGuess == "" {
				state.osGuess = guess
				change.OSGuess = guess
			}
		}
	}

	state.record(r.ActionID, r.Effect)
	return change
}

// NmapRun is the subset of nmap's XML report the planner consumes.
type NmapRun struct {
	XMLName xml.Name  `xml:"nmaprun"`
	Hosts   []xmlHost `xml:"host"`
	Stats   *xmlStats `xml:"runstats"`
}

type xmlStats struct {
	Finished struct {
		Summary string `xml:"summary,attr"`
		Exit    string `xml:"exit,attr"`
	} `xml:"finished"`
}

type xmlHost struct {
	Status struct {
		State  string `xml:"state,attr"`
		Reason string `xml:"reason,attr"`
	} `xml:"status"`
	Addresses []struct {
		Addr     string `xml:"addr,attr"`
		AddrType string `xml:"addrtype,attr"`
	} `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
		Type string `xml:"type,attr"`
	} `xml:"hostnames>hostname"`
	Ports    []xmlPort `xml:"ports>port"`
	OSMatchs []struct {
		Name     string `xml:"name,attr"`
		Accuracy string `xml:"accuracy,attr"`
	} `xml:"os>osmatch"`
}

type xmlPort struct {
	Protocol string `xml:"protocol,attr"`
	PortID   string `xml:"portid,attr"`
	State    struct {
		State string `xml:"state,attr"`
	} `xml:"state"`
	Service *xmlService `xml:"service"`
}

type xmlService struct {
	Name    string `xml:"name,attr"`
	Product string `xml:"product,attr"`
	Version string `xml:"version,attr"`
}

// ParseXML decodes nmap XML output. Element names match regardless of namespace.
func ParseXML(output string) (*NmapRun, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}
	var run NmapRun
	if err := xml.Unmarshal([]byte(trimmed), &run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &run, nil
}

func (h xmlHost) primaryAddress() string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" || a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	return ""
}

func (h xmlHost) primaryHostname() string {
	for _, hn := range h.Hostnames {
		if hn.Name != "" {
			return hn.Name
		}
	}
	return ""
}

func (h xmlHost) bestOSMatch() string {
	best, bestAcc := "", -1
	for _, m := range h.OSMatchs {
		acc, _ := strconv.Atoi(m.Accuracy)
		if m.Name != "" && acc > bestAcc {
			best, bestAcc = m.Name, acc
		}
	}
	return best
}

func (p xmlPort) open() (Port, bool) {
	if !strings.EqualFold(p.State.State, "open") {
		return Port{}, false
	}
	n, err := strconv.Atoi(p.PortID)
	if err != nil || n < 1 || n > 65535 {
		return Port{}, false
	}
	proto := strings.ToLower(p.Protocol)
	if proto == "" {
		proto = "tcp"
	}
	return Port{Number: n, Protocol: proto}, true
}

func (s xmlService) toService(port Port) Service {
	name := s.Name
	if name == "" {
		name = s.Product
	}
	return Service{
		Port:     port.Number,
		Protocol: port.Protocol,
		Name:     name,
		Product:  s.Product,
		Version:  s.Version,
	}
}

// Summary renders a short human-readable description of a parsed report.
func (r *NmapRun) Summary() string {
	if r == nil || len(r.Hosts) == 0 {
		return "no hosts reported"
	}
	var b strings.Builder
	for i, h := range r.Hosts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "host %s: %s", h.primaryAddress(), h.Status.State)
		for _, p := range h.Ports {
			if port, ok := p.open(); ok {
				fmt.Fprintf(&b, "\n  %d/%s open", port.Number, port.Protocol)
				if p.Service != nil {
					fmt.Fprintf(&b, " %s", p.Service.toService(port).Describe())
				}
			}
		}
		if os := h.bestOSMatch(); os != "" {
			fmt.Fprintf(&b, "\n  os: %s", os)
		}
	}
	return b.String()
}
