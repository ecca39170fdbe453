// Package action provides the closed catalog of reconnaissance actions and
// the per-turn menu calculation.
package action

import (
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// ID identifies an action in the catalog.
type ID string

// Catalog action ids. The set is closed.
const (
	HostReachability ID = "host_reachability"
	PortScan         ID = "port_scan"
	PortScan100      ID = "port_scan_1_100"
	PortScan1000     ID = "port_scan_1_1000"
	PortScanAll      ID = "port_scan_1_65535"
	ServiceDetect    ID = "service_detect"
	OSFingerprint    ID = "os_fingerprint"
	Wait             ID = "wait"
	Done             ID = "done"
)

// String returns the id as sent on the wire.
func (id ID) String() string {
	return string(id)
}

// Kind distinguishes what performing an action means.
type Kind string

// Action kinds.
const (
	// KindExecute runs the external scanner.
	KindExecute Kind = "execute"

	// KindWait pauses without running anything.
	KindWait Kind = "wait"

	// KindTerminate ends the run.
	KindTerminate Kind = "terminate"
)

// Param names accepted by parametrized actions.
const (
	ParamRange = "range"
	ParamScope = "scope"
)

// Service detection scopes.
const (
	ScopeAll    = "all"
	ScopeCommon = "common"
)

// CommonPorts is the port list used by service detection with scope common.
const CommonPorts = "21,22,25,53,80,110,143,443,8080,8443"

// Params carries validated action parameters.
type Params map[string]string

// Definition describes one catalog entry.
type Definition struct {
	// ID is the catalog id.
	ID ID

	// Kind is the action kind.
	Kind Kind

	// Effect classifies the action for state merging.
	Effect scan.Effect

	// Summary is a one-line description for the decision-maker.
	Summary string

	// RequiredParams lists parameters that must be present.
	RequiredParams []string

	// OptionalParams lists parameters that may be present.
	OptionalParams []string
}

// Invocation is a fully resolved action ready to perform.
type Invocation struct {
	// ActionID is the catalog id.
	ActionID ID

	// Kind is the action kind.
	Kind Kind

	// Effect classifies the action for state merging.
	Effect scan.Effect

	// Params are the validated parameters used to build Argv.
	Params Params

	// Argv is the exact process argument vector. Empty unless Kind is execute.
	Argv []string

	// Timeout bounds the process. Zero unless Kind is execute.
	Timeout time.Duration

	// Wait is the pause length. Zero unless Kind is wait.
	Wait time.Duration
}

// Command renders Argv for display, quoting arguments that contain spaces.
func (inv Invocation) Command() string {
	parts := make([]string, len(inv.Argv))
	for i, a := range inv.Argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
