package action

import (
	"fmt"
	"strconv"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// MaxWait caps the wait action regardless of configuration.
const MaxWait = 30 * time.Second

// processGrace is added to the scanner's host timeout to bound the process.
const processGrace = 60 * time.Second

// CatalogConfig configures argv construction.
type CatalogConfig struct {
	// Binary is the scanner executable.
	Binary string

	// Sudo prefixes every invocation with "sudo -n".
	Sudo bool

	// HostTimeout is passed to the scanner for ordinary scans.
	HostTimeout time.Duration

	// FullRangeHostTimeout is used when all 65535 ports are scanned.
	FullRangeHostTimeout time.Duration

	// Wait is the requested pause for the wait action.
	Wait time.Duration
}

// DefaultCatalogConfig returns the default argv settings.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Binary:               "nmap",
		Sudo:                 true,
		HostTimeout:          300 * time.Second,
		FullRangeHostTimeout: 3600 * time.Second,
		Wait:                 10 * time.Second,
	}
}

var definitions = []Definition{
	{ID: HostReachability, Kind: KindExecute, Effect: scan.EffectReachability,
		Summary: "check whether the host is up (ping scan, no ports)"},
	{ID: PortScan, Kind: KindExecute, Effect: scan.EffectPortScan,
		Summary:        `TCP SYN scan of a custom range; requires "range" such as "1-1024" or "22,80,443"`,
		RequiredParams: []string{ParamRange}},
	{ID: PortScan100, Kind: KindExecute, Effect: scan.EffectPortScan,
		Summary: "TCP SYN scan of ports 1-100"},
	{ID: PortScan1000, Kind: KindExecute, Effect: scan.EffectPortScan,
		Summary: "TCP SYN scan of ports 1-1000"},
	{ID: PortScanAll, Kind: KindExecute, Effect: scan.EffectPortScan,
		Summary: "TCP SYN scan of all 65535 ports (slow)"},
	{ID: ServiceDetect, Kind: KindExecute, Effect: scan.EffectServiceDetect,
		Summary:        `service and version detection; optional "scope" of "all" or "common"`,
		OptionalParams: []string{ParamScope}},
	{ID: OSFingerprint, Kind: KindExecute, Effect: scan.EffectOSDetect,
		Summary: "operating system fingerprint"},
	{ID: Wait, Kind: KindWait,
		Summary: "pause briefly without scanning"},
	{ID: Done, Kind: KindTerminate,
		Summary: "stop; the goal is reached or nothing useful remains"},
}

// Catalog maps action ids to invocations. It is read-only after construction
// and safe to share between runs.
type Catalog struct {
	config CatalogConfig
	defs   map[ID]Definition
}

// NewCatalog creates a catalog with the given argv settings.
func NewCatalog(config CatalogConfig) *Catalog {
	defaults := DefaultCatalogConfig()
	if config.Binary == "" {
		config.Binary = defaults.Binary
	}
	if config.HostTimeout <= 0 {
		config.HostTimeout = defaults.HostTimeout
	}
	if config.FullRangeHostTimeout <= 0 {
		config.FullRangeHostTimeout = defaults.FullRangeHostTimeout
	}
	if config.Wait < 0 {
		config.Wait = 0
	}

	defs := make(map[ID]Definition, len(definitions))
	for _, d := range definitions {
		defs[d.ID] = d
	}
	return &Catalog{config: config, defs: defs}
}

// Config returns the argv settings.
func (c *Catalog) Config() CatalogConfig {
	return c.config
}

// Lookup returns the definition for an id.
func (c *Catalog) Lookup(id ID) (Definition, bool) {
	d, ok := c.defs[id]
	return d, ok
}

// Definitions returns all definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Build resolves an action into an invocation. For a given id, target and
// params the result is always identical. Nothing else constructs scanner argv.
func (c *Catalog) Build(id ID, target scan.Target, params Params) (Invocation, error) {
	def, ok := c.defs[id]
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	inv := Invocation{ActionID: id, Kind: def.Kind, Effect: def.Effect, Params: Params{}}

	switch def.Kind {
	case KindTerminate:
		return inv, nil
	case KindWait:
		inv.Wait = min(c.config.Wait, MaxWait)
		return inv, nil
	}

	hostTimeout := c.config.HostTimeout
	var scanArgs []string

	switch id {
	case HostReachability:
		return c.finish(inv, hostTimeout, "-sn", "-vv", "--host-timeout="+seconds(hostTimeout), "-oX", "-", target.String()), nil

	case OSFingerprint:
		return c.finish(inv, hostTimeout, "-O", "-vv", "--host-timeout="+seconds(hostTimeout), "-oX", "-", target.String()), nil

	case PortScan:
		expr, spans, err := ParsePortRange(params[ParamRange])
		if err != nil {
			return Invocation{}, err
		}
		inv.Params[ParamRange] = expr
		if PortCount(spans) == MaxPort {
			hostTimeout = c.config.FullRangeHostTimeout
		}
		scanArgs = []string{"-sS", "-p", expr}

	case PortScan100:
		scanArgs = []string{"-sS", "-p", "1-100"}

	case PortScan1000:
		scanArgs = []string{"-sS", "-p", "1-1000"}

	case PortScanAll:
		hostTimeout = c.config.FullRangeHostTimeout
		scanArgs = []string{"-sS", "-p", "1-65535"}

	case ServiceDetect:
		ports := "1-65535"
		switch scope := params[ParamScope]; scope {
		case "", ScopeAll:
			inv.Params[ParamScope] = ScopeAll
		case ScopeCommon:
			inv.Params[ParamScope] = ScopeCommon
			ports = CommonPorts
		default:
			return Invocation{}, fmt.Errorf("%w: scope %q", ErrInvalidParams, scope)
		}
		scanArgs = []string{"-sS", "-sV", "-p", ports}
	}

	args := append(scanArgs, "-T4", "-vv", "--host-timeout", seconds(hostTimeout), "-oX", "-", target.String())
	return c.finish(inv, hostTimeout, args...), nil
}

func (c *Catalog) finish(inv Invocation, hostTimeout time.Duration, args ...string) Invocation {
	argv := make([]string, 0, len(args)+3)
	if c.config.Sudo {
		argv = append(argv, "sudo", "-n")
	}
	argv = append(argv, c.config.Binary)
	argv = append(argv, args...)

	inv.Argv = argv
	inv.Timeout = hostTimeout + processGrace
	return inv
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
