// Package timefmt converts upstream UTC play timestamps into the local-time
// string representations used throughout the history store.
package timefmt

import (
	"fmt"
	"time"
)

// Layouts for the derived strings. Milliseconds are appended separately
// because the store's legacy format separates them with a colon.
const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05"
)

// Localize parses an ISO-8601 UTC timestamp (Spotify's played_at format) and
// returns the three local-time strings stored per play:
//
//	dateTime: "2006-01-02 15:04:05:000"
//	date:     "2006-01-02"
//	timeOfDay: "15:04:05:000"
//
// Millisecond precision is preserved. Returns an error on unparseable input.
func Localize(playedAt string) (dateTime, date, timeOfDay string, err error) {
	return LocalizeIn(playedAt, time.Local)
}

// LocalizeIn is Localize with an explicit target location.
func LocalizeIn(playedAt string, loc *time.Location) (dateTime, date, timeOfDay string, err error) {
	t, err := time.Parse(time.RFC3339Nano, playedAt)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing played-at timestamp %q: %w", playedAt, err)
	}

	local := t.In(loc)
	ms := local.Nanosecond() / int(time.Millisecond)

	dateTime = fmt.Sprintf("%s:%03d", local.Format(dateTimeLayout), ms)
	date = local.Format(dateLayout)
	timeOfDay = fmt.Sprintf("%s:%03d", local.Format(timeLayout), ms)
	return dateTime, date, timeOfDay, nil
}

// FormatDuration renders a millisecond duration as "M:SS" for display.
// Both fields are taken modulo 60, so durations of an hour or more wrap the
// minutes field (3600000 -> "0:00"). That wraparound is a long-standing
// display behavior that downstream consumers expect; keep it.
func FormatDuration(durationMs int) string {
	secs := (durationMs / 1000) % 60
	mins := (durationMs / (1000 * 60)) % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}
