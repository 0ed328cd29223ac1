package version

import (
	"strconv"
	"strings"
)

// parseSemver extracts the numeric core of a version string. The leading
// "v" and any prerelease or build suffix are stripped, missing parts
// default to zero, and anything unparseable comes back as {0,0,0}.
func parseSemver(v string) [3]int {
	var core [3]int

	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return core
	}

	parts := strings.Split(v, ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return [3]int{}
		}
		core[i] = n
	}
	return core
}

// isNewer reports whether latest is a strictly newer release than current.
// Only the numeric cores are compared, so v1.0.0-beta and v1.0.0 tie.
func isNewer(latest, current string) bool {
	l, c := parseSemver(latest), parseSemver(current)
	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}
