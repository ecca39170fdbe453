// Package recongo carries the release metadata shared by the recon CLI,
// its REST surface and its MCP server.
package recongo

import (
	"runtime"
	"runtime/debug"
)

// Version is the release version.
const Version = "0.1.0"

// Commit and Date are stamped by release builds with
// -ldflags "-X github.com/felixgeelhaar/recon-go.Commit=...".
var (
	Commit = ""
	Date   = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// ReadBuildInfo returns the release metadata. Commit and date fall back to
// the VCS stamp the go tool embeds, then to "unknown".
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}
