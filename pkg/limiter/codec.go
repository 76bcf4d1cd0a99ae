package limiter

import (
	"strconv"
	"time"
)

// maxResetDelay caps reset projections so a zero or tiny rate cannot
// overflow time.Duration arithmetic.
const maxResetDelay = 100 * 365 * 24 * time.Hour

// formatReal renders a float with enough digits to round-trip a float64,
// independent of locale.
func formatReal(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseReal(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// formatInstant renders an instant in UTC RFC 3339 with nanoseconds, the
// round-trip form shared with any other process using the same store.
func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseInstant(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// secondsToDuration converts a real number of seconds, clamped to
// [0, maxResetDelay].
func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	if sec >= maxResetDelay.Seconds() {
		return maxResetDelay
	}
	return time.Duration(sec * float64(time.Second))
}
