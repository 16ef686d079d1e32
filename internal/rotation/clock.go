// Package rotation computes recording windows anchored at the Unix epoch.
package rotation

import "time"

const (
	// StartLabelLayout names the first timestamp of a finalized recording.
	StartLabelLayout = "20060102_1504"
	// EndLabelLayout names the time of day a recording was finalized.
	EndLabelLayout = "1504"
)

// Window is one recording interval. It is never modified; a rotation
// replaces it with a new value.
type Window struct {
	StartLabel string
	Start      time.Time
	End        time.Time // exclusive
}

// CurrentWindow returns the window that contains now. The end is the next
// multiple of period counted in milliseconds from the epoch, so a 60 minute
// period rotates on the hour regardless of when the process started.
func CurrentWindow(now time.Time, period time.Duration) Window {
	periodMs := period.Milliseconds()
	if periodMs < 1 {
		periodMs = 1
	}
	startMs := now.UnixMilli()
	rem := startMs % periodMs
	if rem < 0 {
		rem += periodMs
	}
	endMs := startMs - rem + periodMs

	return Window{
		StartLabel: StartLabel(now),
		Start:      now,
		End:        time.UnixMilli(endMs).UTC(),
	}
}

// Contains reports whether t falls before the end of the window.
func (w Window) Contains(t time.Time) bool {
	return t.Before(w.End)
}

// StartLabel formats t for the first timestamp of a file name.
func StartLabel(t time.Time) string {
	return t.UTC().Format(StartLabelLayout)
}

// EndLabel formats t for the finalization part of a file name.
func EndLabel(t time.Time) string {
	return t.UTC().Format(EndLabelLayout)
}
