package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func utc(y int, mo time.Month, d, h, mi, s, ms int) time.Time {
	return time.Date(y, mo, d, h, mi, s, ms*int(time.Millisecond), time.UTC)
}

func TestCurrentWindow_BoundaryOnTheHour(t *testing.T) {
	start := utc(2013, time.June, 15, 12, 59, 59, 900)
	w := CurrentWindow(start, time.Hour)

	assert.Equal(t, utc(2013, time.June, 15, 13, 0, 0, 0), w.End)
	assert.Equal(t, "20130615_1259", w.StartLabel)
	assert.True(t, w.Start.Equal(start))
}

func TestCurrentWindow_EndWithinOnePeriod(t *testing.T) {
	periods := []time.Duration{
		time.Millisecond,
		time.Second,
		time.Minute,
		7 * time.Minute,
		time.Hour,
		25 * time.Hour,
	}
	base := utc(2024, time.February, 29, 23, 17, 3, 411)
	for _, p := range periods {
		for i := 0; i < 500; i++ {
			start := base.Add(time.Duration(i) * 7919 * time.Millisecond)
			w := CurrentWindow(start, p)
			assert.True(t, w.End.After(start), "period %s start %s end %s", p, start, w.End)
			assert.LessOrEqual(t, w.End.Sub(start), p, "period %s start %s", p, start)
			assert.Zero(t, w.End.UnixMilli()%p.Milliseconds(), "end must be epoch aligned")
		}
	}
}

func TestCurrentWindow_ExactBoundaryOpensFullWindow(t *testing.T) {
	start := utc(2013, time.June, 15, 13, 0, 0, 0)
	w := CurrentWindow(start, time.Hour)
	assert.Equal(t, utc(2013, time.June, 15, 14, 0, 0, 0), w.End)
}

func TestCurrentWindow_Idempotent(t *testing.T) {
	start := utc(2020, time.January, 1, 8, 30, 15, 123)
	assert.Equal(t, CurrentWindow(start, 10*time.Minute), CurrentWindow(start, 10*time.Minute))
}

func TestCurrentWindow_NonDivisorPeriodStaysEpochAnchored(t *testing.T) {
	// 7 minutes does not divide a day; boundaries follow the epoch, not midnight.
	start := utc(1970, time.January, 1, 0, 20, 0, 0)
	w := CurrentWindow(start, 7*time.Minute)
	assert.Equal(t, utc(1970, time.January, 1, 0, 21, 0, 0), w.End)

	midnight := utc(2013, time.June, 15, 0, 0, 0, 0)
	w = CurrentWindow(midnight, 7*time.Minute)
	wantMs := midnight.UnixMilli() - midnight.UnixMilli()%(7*60*1000) + 7*60*1000
	assert.Equal(t, wantMs, w.End.UnixMilli())
	assert.NotEqual(t, midnight.Add(7*time.Minute), w.End)
}

func TestCurrentWindow_LocalTimeZoneIgnored(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	start := time.Date(2013, time.June, 15, 18, 29, 0, 0, loc) // 12:59 UTC
	w := CurrentWindow(start, time.Hour)
	assert.Equal(t, "20130615_1259", w.StartLabel)
	assert.Equal(t, utc(2013, time.June, 15, 13, 0, 0, 0), w.End)
}

func TestCurrentWindow_BeforeEpoch(t *testing.T) {
	start := utc(1969, time.December, 31, 23, 30, 0, 0)
	w := CurrentWindow(start, time.Hour)
	assert.Equal(t, utc(1970, time.January, 1, 0, 0, 0, 0), w.End)
}

func TestWindow_Contains(t *testing.T) {
	w := CurrentWindow(utc(2013, time.June, 15, 12, 0, 0, 0), time.Hour)
	assert.True(t, w.Contains(utc(2013, time.June, 15, 12, 59, 59, 999)))
	assert.False(t, w.Contains(w.End))
}

func TestLabels(t *testing.T) {
	ts := utc(2013, time.June, 15, 14, 0, 30, 0)
	assert.Equal(t, "20130615_1400", StartLabel(ts))
	assert.Equal(t, "1400", EndLabel(ts))
}
