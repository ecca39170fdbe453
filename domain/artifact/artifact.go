// Package artifact provides domain models for raw scan output storage.
package artifact

import (
	"strings"
	"time"
)

// ContentTypeXML is the content type of nmap -oX output.
const ContentTypeXML = "application/xml"

// Metadata keys attached to scan artifacts.
const (
	MetaRunID    = "run_id"
	MetaActionID = "action_id"
	MetaTarget   = "target"
)

// Ref is a stable reference to a stored artifact.
type Ref struct {
	// ID is the unique identifier for the artifact.
	ID string `json:"id"`

	// Name is the human-readable file name.
	Name string `json:"name,omitempty"`

	// ContentType is the MIME type of the artifact.
	ContentType string `json:"content_type,omitempty"`

	// Size is the size of the artifact in bytes.
	Size int64 `json:"size"`

	// Checksum is the hex SHA-256 of the content.
	Checksum string `json:"checksum,omitempty"`

	// CreatedAt is when the artifact was stored.
	CreatedAt time.Time `json:"created_at"`

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRef creates a new artifact reference.
func NewRef(id string) Ref {
	return Ref{
		ID:        id,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// WithMetadata adds metadata to the artifact.
func (r Ref) WithMetadata(key, value string) Ref {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// IsValid returns true if the reference has a valid ID.
func (r Ref) IsValid() bool {
	return r.ID != ""
}

// String returns a string representation of the reference.
func (r Ref) String() string {
	if r.Name != "" {
		return r.Name + " (" + r.ID + ")"
	}
	return r.ID
}

// ScanName returns the file name for one invocation's XML output,
// "<target>_<YYYYmmdd_HHMMSS>_<action>.xml". Characters outside
// [A-Za-z0-9.-] in the target are replaced with underscores.
func ScanName(target, actionID string, at time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, target)
	if safe == "" {
		safe = "scan"
	}
	return safe + "_" + at.UTC().Format("20060102_150405") + "_" + actionID + ".xml"
}
