package action

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MaxPort is the highest valid port number.
const MaxPort = 65535

// PortSpan is an inclusive port interval.
type PortSpan struct {
	Start int
	End   int
}

// ParsePortRange validates a port expression of comma-separated tokens, each
// either a single port or an A-B span with 1 <= A <= B <= 65535. It returns
// the canonical expression with whitespace removed.
func ParsePortRange(expr string) (string, []PortSpan, error) {
	compact := strings.ReplaceAll(strings.TrimSpace(expr), " ", "")
	if compact == "" {
		return "", nil, fmt.Errorf("%w: empty port range", ErrInvalidParams)
	}

	tokens := strings.Split(compact, ",")
	spans := make([]PortSpan, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			return "", nil, fmt.Errorf("%w: empty token in port range %q", ErrInvalidParams, expr)
		}

		lo, hi, isSpan := strings.Cut(tok, "-")
		start, err := parsePort(lo)
		if err != nil {
			return "", nil, err
		}
		end := start
		if isSpan {
			if end, err = parsePort(hi); err != nil {
				return "", nil, err
			}
			if start > end {
				return "", nil, fmt.Errorf("%w: port span %s is reversed", ErrInvalidParams, tok)
			}
		}
		spans = append(spans, PortSpan{Start: start, End: end})
	}
	return compact, spans, nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: missing port number", ErrInvalidParams)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q is not a port number", ErrInvalidParams, s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxPort {
		return 0, fmt.Errorf("%w: port %s out of range 1-%d", ErrInvalidParams, s, MaxPort)
	}
	return n, nil
}

// PortCount returns the number of distinct ports the spans cover.
func PortCount(spans []PortSpan) int {
	sorted := slices.Clone(spans)
	slices.SortFunc(sorted, func(a, b PortSpan) int { return a.Start - b.Start })

	count, next := 0, 1
	for _, sp := range sorted {
		start := max(sp.Start, next)
		if sp.End >= start {
			count += sp.End - start + 1
			next = sp.End + 1
		}
	}
	return count
}
