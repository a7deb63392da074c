package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeframe converts an exchange-style timeframe string ("1m", "15m",
// "4h", "1d") into a duration. Exchange conventions only; this is not a
// general duration parser.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("timeframe: invalid %q", tf)
	}
	unit := tf[len(tf)-1]
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("timeframe: invalid %q", tf)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("timeframe: unknown unit in %q", tf)
	}
}

// ValidTimeframe reports whether tf parses as a timeframe.
func ValidTimeframe(tf string) bool {
	_, err := ParseTimeframe(strings.TrimSpace(tf))
	return err == nil
}
