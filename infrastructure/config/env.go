package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

// envRef matches ${VAR}, ${VAR:-default}, ${VAR:?message} and $VAR. Group 1
// is the braced name, group 2 its modifier, group 3 the bare name.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:[-?][^}]*)?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// envExpander substitutes environment references in configuration text in a
// single pass; substituted values are never expanded again.
type envExpander struct {
	// strict reports unset plain references instead of substituting "".
	strict bool
	// lookup defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// Expand substitutes every reference in input. ${VAR:-default} falls back
// when VAR is unset or empty; ${VAR:?message} fails in that case.
func (e *envExpander) Expand(input string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, modifier := m[1], m[2]
		if name == "" {
			name = m[3]
		}
		value, set := lookup(name)

		if modifier != "" && (!set || value == "") {
			if modifier[1] == '-' {
				return modifier[2:]
			}
			missing = append(missing, fmt.Sprintf("%s: %s", name, modifier[2:]))
			return ref
		}
		if !set && e.strict {
			missing = append(missing, name)
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", config.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out, nil
}

// ExpandEnv expands references, leaving unset variables empty.
func ExpandEnv(input string) string {
	out, err := (&envExpander{}).Expand(input)
	if err != nil {
		// Only ${VAR:?msg} fails outside strict mode; keep the text as is.
		return input
	}
	return out
}
