package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var delayPartRegex = regexp.MustCompile(`(\d+)\s*(ms|w|d|h|m|s)?`)

var delayUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// Parses delay strings as written in guild configs, such as "10s", "1h30m", "2d" or "1w 2d". A bare number is taken as minutes.
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty delay string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative delay: %q", s)
		}
		return d, nil
	}
	matches := delayPartRegex.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return 0, fmt.Errorf("invalid delay string: %q", s)
	}
	var total time.Duration
	pos := 0
	for _, m := range matches {
		// only whitespace may separate parts
		if strings.TrimSpace(s[pos:m[0]]) != "" {
			return 0, fmt.Errorf("invalid delay string: %q", s)
		}
		n, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil {
			return 0, fmt.Errorf("invalid delay string: %q", s)
		}
		unit := "m"
		if m[4] >= 0 {
			unit = s[m[4]:m[5]]
		}
		total += time.Duration(n) * delayUnits[unit]
		pos = m[1]
	}
	if strings.TrimSpace(s[pos:]) != "" {
		return 0, fmt.Errorf("invalid delay string: %q", s)
	}
	return total, nil
}

// Renders a duration compactly for log and alert messages, eg "1d 2h" or "30s".
func HumanizeDelay(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.String()
	}
	var parts []string
	for _, u := range []struct {
		name string
		dur  time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	} {
		if d >= u.dur {
			n := d / u.dur
			d -= n * u.dur
			parts = append(parts, fmt.Sprintf("%d%s", n, u.name))
		}
	}
	return strings.Join(parts, " ")
}
