package action

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/scan"
)

const target scan.Target = "192.0.2.7"

func TestCatalog_Build(t *testing.T) {
	t.Parallel()

	c := NewCatalog(DefaultCatalogConfig())

	tests := []struct {
		name        string
		id          ID
		params      Params
		wantArgv    []string
		wantTimeout time.Duration
	}{
		{
			name:        "host reachability",
			id:          HostReachability,
			wantArgv:    []string{"sudo", "-n", "nmap", "-sn", "-vv", "--host-timeout=300", "-oX", "-", "192.0.2.7"},
			wantTimeout: 360 * time.Second,
		},
		{
			name:        "fixed range",
			id:          PortScan1000,
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-p", "1-1000", "-T4", "-vv", "--host-timeout", "300", "-oX", "-", "192.0.2.7"},
			wantTimeout: 360 * time.Second,
		},
		{
			name:        "full range",
			id:          PortScanAll,
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-p", "1-65535", "-T4", "-vv", "--host-timeout", "3600", "-oX", "-", "192.0.2.7"},
			wantTimeout: 3660 * time.Second,
		},
		{
			name:        "custom range",
			id:          PortScan,
			params:      Params{ParamRange: "22, 80,443"},
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-p", "22,80,443", "-T4", "-vv", "--host-timeout", "300", "-oX", "-", "192.0.2.7"},
			wantTimeout: 360 * time.Second,
		},
		{
			name:        "custom full range uses long timeout",
			id:          PortScan,
			params:      Params{ParamRange: "1-65535"},
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-p", "1-65535", "-T4", "-vv", "--host-timeout", "3600", "-oX", "-", "192.0.2.7"},
			wantTimeout: 3660 * time.Second,
		},
		{
			name:        "split full range uses long timeout",
			id:          PortScan,
			params:      Params{ParamRange: "1-1000,1001-65535"},
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-p", "1-1000,1001-65535", "-T4", "-vv", "--host-timeout", "3600", "-oX", "-", "192.0.2.7"},
			wantTimeout: 3660 * time.Second,
		},
		{
			name:        "overlapping full range uses long timeout",
			id:          PortScan,
			params:      Params{ParamRange: "1-65535,80"},
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-p", "1-65535,80", "-T4", "-vv", "--host-timeout", "3600", "-oX", "-", "192.0.2.7"},
			wantTimeout: 3660 * time.Second,
		},
		{
			name:        "service detect common",
			id:          ServiceDetect,
			params:      Params{ParamScope: ScopeCommon},
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-sV", "-p", CommonPorts, "-T4", "-vv", "--host-timeout", "300", "-oX", "-", "192.0.2.7"},
			wantTimeout: 360 * time.Second,
		},
		{
			name:        "service detect default scope",
			id:          ServiceDetect,
			wantArgv:    []string{"sudo", "-n", "nmap", "-sS", "-sV", "-p", "1-65535", "-T4", "-vv", "--host-timeout", "300", "-oX", "-", "192.0.2.7"},
			wantTimeout: 360 * time.Second,
		},
		{
			name:        "os fingerprint",
			id:          OSFingerprint,
			wantArgv:    []string{"sudo", "-n", "nmap", "-O", "-vv", "--host-timeout=300", "-oX", "-", "192.0.2.7"},
			wantTimeout: 360 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inv, err := c.Build(tt.id, target, tt.params)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if !reflect.DeepEqual(inv.Argv, tt.wantArgv) {
				t.Errorf("Argv = %v, want %v", inv.Argv, tt.wantArgv)
			}
			if inv.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", inv.Timeout, tt.wantTimeout)
			}
			if inv.Kind != KindExecute {
				t.Errorf("Kind = %s, want execute", inv.Kind)
			}
		})
	}
}

func TestCatalog_BuildDeterministic(t *testing.T) {
	t.Parallel()

	c := NewCatalog(DefaultCatalogConfig())
	a, _ := c.Build(PortScan, target, Params{ParamRange: "1-1024"})
	b, _ := c.Build(PortScan, target, Params{ParamRange: "1-1024"})
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Build() not deterministic: %+v vs %+v", a, b)
	}
}

func TestCatalog_BuildWithoutSudo(t *testing.T) {
	t.Parallel()

	cfg := DefaultCatalogConfig()
	cfg.Sudo = false
	cfg.Binary = "/usr/local/bin/nmap"
	inv, err := NewCatalog(cfg).Build(PortScan100, target, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if inv.Argv[0] != "/usr/local/bin/nmap" {
		t.Errorf("Argv[0] = %s, want /usr/local/bin/nmap", inv.Argv[0])
	}
}

func TestInvocation_Command(t *testing.T) {
	t.Parallel()

	inv := Invocation{Argv: []string{"sudo", "-n", "nmap", "-sn", "a b"}}
	if got, want := inv.Command(), `sudo -n nmap -sn "a b"`; got != want {
		t.Errorf("Command() = %s, want %s", got, want)
	}
}

func TestCatalog_NonExecuting(t *testing.T) {
	t.Parallel()

	cfg := DefaultCatalogConfig()
	cfg.Wait = 10 * time.Minute
	c := NewCatalog(cfg)

	wait, err := c.Build(Wait, target, nil)
	if err != nil {
		t.Fatalf("Build(wait) error = %v", err)
	}
	if wait.Wait != MaxWait {
		t.Errorf("Wait = %v, want cap %v", wait.Wait, MaxWait)
	}
	if len(wait.Argv) != 0 {
		t.Errorf("wait Argv = %v, want empty", wait.Argv)
	}

	done, err := c.Build(Done, target, nil)
	if err != nil {
		t.Fatalf("Build(done) error = %v", err)
	}
	if done.Kind != KindTerminate || len(done.Argv) != 0 {
		t.Errorf("done = %+v, want terminate without argv", done)
	}
}

func TestCatalog_BuildErrors(t *testing.T) {
	t.Parallel()

	c := NewCatalog(DefaultCatalogConfig())

	if _, err := c.Build("rm_rf", target, nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Build(unknown) error = %v, want ErrUnknownAction", err)
	}
	if _, err := c.Build(PortScan, target, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Build(port_scan without range) error = %v, want ErrInvalidParams", err)
	}
	if _, err := c.Build(ServiceDetect, target, Params{ParamScope: "everything"}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Build(bad scope) error = %v, want ErrInvalidParams", err)
	}
}

func TestParsePortRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"80", "80", false},
		{"1-1024", "1-1024", false},
		{"22,80,443", "22,80,443", false},
		{" 22, 80 , 8000-8100 ", "22,80,8000-8100", false},
		{"1-65535", "1-65535", false},
		{"1-100000", "", true},
		{"0", "", true},
		{"100-1", "", true},
		{"22,,80", "", true},
		{"-80", "", true},
		{"80-", "", true},
		{"1-2-3", "", true},
		{"http", "", true},
		{"22;id", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, _, err := ParsePortRange(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Errorf("ParsePortRange(%q) error = %v, want ErrInvalidParams", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortRange(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePortRange(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPortCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  int
	}{
		{"80", 1},
		{"22,80,443", 3},
		{"1-100,50-150", 150},
		{"80,80,80", 1},
		{"1-1000,1001-65535", MaxPort},
		{"1-65535,80", MaxPort},
		{"2-65535", MaxPort - 1},
	}
	for _, tt := range tests {
		_, spans, err := ParsePortRange(tt.input)
		if err != nil {
			t.Fatalf("ParsePortRange(%q) error = %v", tt.input, err)
		}
		if got := PortCount(spans); got != tt.want {
			t.Errorf("PortCount(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func merge(state *scan.State, id ID, effect scan.Effect, output string) {
	scan.Merge(state, scan.Result{ActionID: string(id), Effect: effect, Invoked: true, Output: output})
}

func TestComputeMenu(t *testing.T) {
	t.Parallel()

	gated := goal.Spec{ID: "g", IncludesReachability: true, Completion: goal.CompletionFull}
	ungated := goal.Spec{ID: "u", Completion: goal.CompletionScanOnly}
	full := Menu{PortScan, PortScan100, PortScan1000, PortScanAll, ServiceDetect, OSFingerprint, Wait, Done}

	t.Run("unknown host on gated goal", func(t *testing.T) {
		t.Parallel()

		got := ComputeMenu(scan.NewState(target), gated, MenuOptions{NarrowRanges: true})
		want := Menu{HostReachability, Wait, Done}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ComputeMenu() = %v, want %v", got, want)
		}
	})

	t.Run("unknown host on ungated goal", func(t *testing.T) {
		t.Parallel()

		got := ComputeMenu(scan.NewState(target), ungated, MenuOptions{NarrowRanges: true})
		if !reflect.DeepEqual(got, full) {
			t.Errorf("ComputeMenu() = %v, want %v", got, full)
		}
	})

	t.Run("host down", func(t *testing.T) {
		t.Parallel()

		for _, spec := range []goal.Spec{gated, ungated} {
			state := scan.NewState(target)
			merge(state, HostReachability, scan.EffectReachability, `<nmaprun><host><status state="down"/></host></nmaprun>`)
			got := ComputeMenu(state, spec, MenuOptions{})
			want := Menu{Wait, Done}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ComputeMenu(%s) = %v, want %v", spec.ID, got, want)
			}
		}
	})

	t.Run("host up never offers reachability again", func(t *testing.T) {
		t.Parallel()

		state := scan.NewState(target)
		merge(state, HostReachability, scan.EffectReachability, `<nmaprun><host><status state="up"/></host></nmaprun>`)
		got := ComputeMenu(state, gated, MenuOptions{})
		if !reflect.DeepEqual(got, full) {
			t.Errorf("ComputeMenu() = %v, want %v", got, full)
		}
	})

	t.Run("narrowing drops covered variants", func(t *testing.T) {
		t.Parallel()

		state := scan.NewState(target)
		merge(state, PortScan1000, scan.EffectPortScan, "<nmaprun/>")

		narrowed := ComputeMenu(state, ungated, MenuOptions{NarrowRanges: true})
		want := Menu{PortScan, PortScanAll, ServiceDetect, OSFingerprint, Wait, Done}
		if !reflect.DeepEqual(narrowed, want) {
			t.Errorf("ComputeMenu(narrow) = %v, want %v", narrowed, want)
		}

		wide := ComputeMenu(state, ungated, MenuOptions{})
		if !reflect.DeepEqual(wide, full) {
			t.Errorf("ComputeMenu(no narrow) = %v, want %v", wide, full)
		}
	})
}

func TestMenu_Contains(t *testing.T) {
	t.Parallel()

	m := Menu{HostReachability, Wait, Done}
	if !m.Contains("wait") {
		t.Error("Contains(wait) = false, want true")
	}
	if m.Contains("WAIT") || m.Contains("port_scan") {
		t.Error("Contains() matched a non-member")
	}
	if got := m.Literal(); got != `["host_reachability","wait","done"]` {
		t.Errorf("Literal() = %s", got)
	}
}
