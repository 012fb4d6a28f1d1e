package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// Route is the parsed form of a playground path "/{prefix}/{flowType}/{step}".
type Route struct {
	Flow Type
	Step int
}

// FormatRoute renders a route path for the given prefix, flow type, and step.
// The prefix is used without leading or trailing slashes.
func FormatRoute(prefix string, t Type, step int) string {
	if step < 0 {
		step = 0
	}
	return "/" + strings.Trim(prefix, "/") + "/" + string(t) + "/" + strconv.Itoa(step)
}

// ParseRoute parses a path of the form "/{prefix}/{flowType}/{step}".
//
// The step segment is a base-10 non-negative integer; a missing, malformed,
// or negative step yields 0 rather than an error. An unknown flow type or a
// path outside the prefix is an error: the caller cannot meaningfully adopt
// it into state.
func ParseRoute(prefix, path string) (Route, error) {
	prefix = strings.Trim(prefix, "/")
	trimmed := strings.Trim(path, "/")

	rest, ok := strings.CutPrefix(trimmed, prefix)
	if !ok {
		return Route{}, fmt.Errorf("path %q is outside route prefix %q", path, prefix)
	}
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return Route{}, fmt.Errorf("path %q has no flow type segment", path)
	}

	segs := strings.SplitN(rest, "/", 2)
	t, err := ParseType(segs[0])
	if err != nil {
		return Route{}, fmt.Errorf("parsing route %q: %w", path, err)
	}

	step := 0
	if len(segs) == 2 {
		if n, err := strconv.Atoi(segs[1]); err == nil && n >= 0 {
			step = n
		}
	}
	return Route{Flow: t, Step: step}, nil
}
