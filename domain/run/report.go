package run

import (
	"fmt"
	"strings"
	"time"
)

// Report renders a human-readable report of the record.
func Report(r *Record) string {
	var b strings.Builder

	goalDisplay := r.GoalLabel
	if goalDisplay == "" {
		goalDisplay = r.GoalID
	}
	if r.GoalID != "" && r.GoalID != goalDisplay {
		goalDisplay += " [" + r.GoalID + "]"
	}

	section(&b, "Progress")
	fmt.Fprintf(&b, "Target:     %s\n", orDash(r.Target))
	fmt.Fprintf(&b, "Goal:       %s\n", orDash(goalDisplay))
	fmt.Fprintf(&b, "Status:     %s\n", r.Status)
	if r.StopReason != "" {
		reason := string(r.StopReason)
		if r.ExhaustedBudget != "" {
			reason += " (" + r.ExhaustedBudget + ")"
		}
		fmt.Fprintf(&b, "Stopped:    %s\n", reason)
	}
	fmt.Fprintf(&b, "Steps:      %d / %d  (decision turns)\n", r.Turn, r.MaxTurns)
	fmt.Fprintf(&b, "Stages:     %d  (actions completed)\n", len(r.Stages))
	fmt.Fprintf(&b, "Rejected:   %d  (replies rejected)\n", r.Rejections)
	fmt.Fprintf(&b, "Time taken: %s\n", FormatElapsed(r.Duration()))
	if r.Error != "" {
		fmt.Fprintf(&b, "Error:      %s\n", r.Error)
	}

	section(&b, "Stages")
	if len(r.Stages) == 0 {
		b.WriteString("No stages.\n")
	}
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "%s  %s  %s", s.StartedAt.Format("2006-01-02 15:04:05"), s.ActionID, s.Status)
		if s.Command != "" {
			fmt.Fprintf(&b, "  $ %s", s.Command)
		}
		b.WriteString("\n")
	}

	section(&b, "Results")
	st := r.State
	host := st.ResolvedAddress
	if host == "" {
		host = st.ResolvedHostname
	}
	fmt.Fprintf(&b, "Host:           %s\n", orDash(host))
	if st.ResolvedHostname != "" && st.ResolvedHostname != host {
		fmt.Fprintf(&b, "Hostname:       %s\n", st.ResolvedHostname)
	}
	fmt.Fprintf(&b, "Reachability:   %s\n", st.Reachability)
	osDone := "-"
	if st.OSFingerprinted {
		osDone = "done"
	}
	fmt.Fprintf(&b, "OS fingerprint: %s\n", osDone)
	if st.OSGuess != "" {
		fmt.Fprintf(&b, "OS guess:       %s\n", st.OSGuess)
	}
	b.WriteString("Open ports:\n")
	if len(st.OpenPorts) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, p := range st.OpenPorts {
		fmt.Fprintf(&b, "  %d/%s\n", p.Number, p.Protocol)
	}
	b.WriteString("Services:\n")
	if len(st.Services) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, s := range st.Services {
		fmt.Fprintf(&b, "  %d/%s: %s\n", s.Port, s.Protocol, s.Describe())
	}

	section(&b, "Output")
	wrote := false
	for _, s := range r.Stages {
		if out := strings.TrimSpace(s.Output); out != "" {
			fmt.Fprintf(&b, "## %s\n%s\n", s.ActionID, out)
			wrote = true
		}
	}
	if !wrote {
		b.WriteString("-\n")
	}

	return b.String()
}

func section(b *strings.Builder, title string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(title + "\n---\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatElapsed renders a duration as "Y s" or "X m Y s".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%d s", secs)
	}
	m, s := secs/60, secs%60
	if s == 0 {
		return fmt.Sprintf("%d m", m)
	}
	return fmt.Sprintf("%d m %d s", m, s)
}
