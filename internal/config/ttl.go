package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"localpub/internal/constants"
	"localpub/internal/types"
)

var ttlPattern = regexp.MustCompile(`^(\d+)([smh])$`)

var ttlUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
}

// ParseTTL parses "<digits><s|m|h>". "24h" is accepted as the default.
func ParseTTL(s string) (time.Duration, error) {
	const op = "parse ttl"

	if s == constants.DefaultTTL {
		return constants.DefaultTTLDuration, nil
	}

	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, types.E(types.ConfigError, op, fmt.Sprintf("invalid ttl %q: use a number followed by s, m or h (e.g. 30m)", s), nil)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, types.E(types.ConfigError, op, fmt.Sprintf("invalid ttl %q", s), err)
	}

	unit := ttlUnits[m[2]]
	if n > int64(time.Duration(1<<63-1)/unit) {
		return 0, types.E(types.ConfigError, op, fmt.Sprintf("ttl %q is too large", s), nil)
	}
	return time.Duration(n) * unit, nil
}

// ParseTTLMillis is ParseTTL in milliseconds.
func ParseTTLMillis(s string) (int64, error) {
	d, err := ParseTTL(s)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}
