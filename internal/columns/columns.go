// Package columns turns arbitrary CSV headers into safe, unique Postgres identifiers.
package columns

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	invalidRun = regexp.MustCompile(`[^a-z0-9_]+`)
	validName  = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// Normalize maps headers to lower-case [a-z0-9_] identifiers. Empty or
// digit-leading names become col_{position}; collisions get the smallest
// unused _N suffix starting at 2. Names in reserved count as already taken.
func Normalize(headers []string, reserved ...string) []string {
	seen := make(map[string]int, len(headers)+len(reserved))
	for _, r := range reserved {
		seen[r] = 1
	}

	out := make([]string, len(headers))
	for i, h := range headers {
		name := base(h, i)
		if _, taken := seen[name]; !taken {
			seen[name] = 1
			out[i] = name
			continue
		}
		suffix := seen[name] + 1
		candidate := fmt.Sprintf("%s_%d", name, suffix)
		for {
			if _, taken := seen[candidate]; !taken {
				break
			}
			suffix++
			candidate = fmt.Sprintf("%s_%d", name, suffix)
		}
		seen[name] = suffix
		seen[candidate] = 1
		out[i] = candidate
	}
	return out
}

// Valid reports whether name is an identifier Normalize could have produced.
func Valid(name string) bool {
	return validName.MatchString(name)
}

func base(header string, idx int) string {
	h := strings.ReplaceAll(header, "\ufeff", "")
	h = strings.ToLower(h)
	h = invalidRun.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_")
	if h == "" || !validName.MatchString(h) {
		return fmt.Sprintf("col_%d", idx+1)
	}
	return h
}
