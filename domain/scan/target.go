// Package scan provides the accumulated knowledge model for a single
// reconnaissance target.
package scan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// forbiddenTargetChars are rejected anywhere in a target string.
const forbiddenTargetChars = " \t\n\r;|&$`<>()[]{}'\"\\"

var (
	ipv4Pattern     = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)
)

// Target is the single host a run is pinned to.
// It is fixed at run start and never sourced from the decision-maker.
type Target string

// String returns the target as passed to the scanner.
func (t Target) String() string {
	return string(t)
}

// IsIPv4 reports whether the target is a dotted-quad address.
func (t Target) IsIPv4() bool {
	return ipv4Pattern.MatchString(string(t))
}

// ParseTarget validates raw input and returns a Target.
func ParseTarget(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: target is required", ErrInvalidTarget)
	}
	if strings.ContainsAny(s, forbiddenTargetChars) {
		return "", fmt.Errorf("%w: target contains invalid characters", ErrInvalidTarget)
	}

	if m := ipv4Pattern.FindStringSubmatch(s); m != nil {
		for _, octet := range m[1:] {
			n, err := strconv.Atoi(octet)
			if err != nil || n > 255 {
				return "", fmt.Errorf("%w: invalid IPv4 octet %q", ErrInvalidTarget, octet)
			}
		}
		return Target(s), nil
	}

	if len(s) > 253 || !hostnamePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q is not a hostname or IPv4 address", ErrInvalidTarget, s)
	}
	return Target(s), nil
}
