package youtube

import (
	"time"

	"github.com/sosodev/duration"
)

// ParseDuration converts an ISO-8601 duration such as PT1H2M3S to seconds.
// Malformed or negative values yield 0, which callers treat as unknown.
func ParseDuration(s string) int {
	if s == "" {
		return 0
	}
	d, err := duration.Parse(s)
	if err != nil || d.Negative {
		return 0
	}
	return int(d.ToTimeDuration() / time.Second)
}
