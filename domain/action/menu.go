package action

import (
	"encoding/json"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// Menu is the ordered set of actions legal on one turn.
type Menu []ID

// Contains reports exact, case-sensitive membership.
func (m Menu) Contains(id string) bool {
	for _, item := range m {
		if string(item) == id {
			return true
		}
	}
	return false
}

// Strings returns the ids as strings.
func (m Menu) Strings() []string {
	out := make([]string, len(m))
	for i, id := range m {
		out[i] = string(id)
	}
	return out
}

// Literal renders the menu as a JSON list for the decision-maker.
func (m Menu) Literal() string {
	b, err := json.Marshal(m.Strings())
	if err != nil {
		return "[]"
	}
	return string(b)
}

// MenuOptions tunes the full menu.
type MenuOptions struct {
	// NarrowRanges drops fixed port-scan variants already covered by an
	// executed variant of equal or wider range.
	NarrowRanges bool
}

// fixedScans are ordered by increasing coverage.
var fixedScans = []ID{PortScan100, PortScan1000, PortScanAll}

// ComputeMenu returns the legal actions for the state and goal. It is pure
// and must be called every turn.
func ComputeMenu(state *scan.State, spec goal.Spec, opts MenuOptions) Menu {
	switch state.Reachability() {
	case scan.ReachabilityUnresponsive:
		return Menu{Wait, Done}
	case scan.ReachabilityUnknown:
		if spec.IncludesReachability {
			return Menu{HostReachability, Wait, Done}
		}
	}

	menu := Menu{PortScan}
	covered := -1
	if opts.NarrowRanges {
		for i, id := range fixedScans {
			if state.HasExecuted(string(id)) {
				covered = i
			}
		}
	}
	for i, id := range fixedScans {
		if i > covered {
			menu = append(menu, id)
		}
	}
	return append(menu, ServiceDetect, OSFingerprint, Wait, Done)
}
