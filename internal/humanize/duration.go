// Package humanize renders durations for user-facing messages.
package humanize

import (
	"fmt"
	"math"
	"time"
)

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// Abbrev renders 5m as "5min", 1h as "1h" and anything else in seconds.
func Abbrev(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dmin", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", Seconds(d))
	}
}

// Duration renders 5m as "5 minutes" and 24h as "24 hours".
func Duration(d time.Duration) string {
	var n int
	var unit string
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		n, unit = int(d/time.Hour), "hour"
	case d >= time.Minute && d%time.Minute == 0:
		n, unit = int(d/time.Minute), "minute"
	default:
		n, unit = Seconds(d), "second"
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", n, unit)
}
