// Package schedule decides when a stored post is due.
//
// Scheduled times are compared as naive wall-clock values in a fixed reference zone
// (IST by default). Both sides of every comparison go through the same conversion:
// "now" is shifted into the reference zone and re-labelled as UTC. Stored values encoded
// as UTC (BSON dates, "Z" strings, epoch milliseconds) are read as wall-clock fields.
// Only strings with a non-UTC offset are converted into the reference zone.
// The resulting times are only meaningful relative to each other.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultOffset is IST (UTC+05:30).
const DefaultOffset = 5*time.Hour + 30*time.Minute

// DefaultBuffer absorbs trigger jitter so posts due a few seconds after the tick are picked up.
const DefaultBuffer = 60 * time.Second

// naiveLayouts are tried for strings that carry no offset; the value is read as wall-clock time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Zone is a fixed offset from UTC.
type Zone struct {
	Offset time.Duration
}

// IST returns the default reference zone.
func IST() Zone { return Zone{Offset: DefaultOffset} }

// Wall converts an absolute instant into the naive wall-clock convention.
func (z Zone) Wall(instant time.Time) time.Time {
	return instant.UTC().Add(z.Offset)
}

// Naive drops location information and keeps the wall-clock fields.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Parse reads a stored scheduled-time value into the wall-clock convention.
//
// The web app stores offset-less form input through UTC encodings, so the UTC fields of
// a BSON date, a "Z" string or epoch milliseconds already are the wall-clock value and
// every encoding of one stored value reads the same. A string carrying a non-UTC offset
// names its own zone and is converted to the reference zone's wall clock.
func (z Zone) Parse(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case primitive.DateTime:
		return Naive(val.Time().UTC()), true
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return Naive(val.UTC()), true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return z.Parse(*val)
	case int64:
		return fromMillis(val), true
	case int32:
		return fromMillis(int64(val)), true
	case float64:
		return fromMillis(int64(val)), true
	case string:
		return z.parseString(val)
	default:
		return time.Time{}, false
	}
}

func (z Zone) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		if _, offset := t.Zone(); offset != 0 {
			return z.Wall(t), true
		}
		return Naive(t.UTC()), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromMillis(ms), true
	}
	return time.Time{}, false
}

func fromMillis(ms int64) time.Time {
	return Naive(time.UnixMilli(ms).UTC())
}

// Window is the due-ness rule: scheduled <= wall(now) + Buffer.
type Window struct {
	Zone   Zone
	Buffer time.Duration
}

// NewWindow returns a window with the given zone and buffer.
func NewWindow(zone Zone, buffer time.Duration) Window {
	return Window{Zone: zone, Buffer: buffer}
}

// Cutoff is the latest wall-clock scheduled time that is due at now.
func (w Window) Cutoff(now time.Time) time.Time {
	return w.Zone.Wall(now).Add(w.Buffer)
}

// IsDue reports whether a wall-clock scheduled time has arrived at now.
func (w Window) IsDue(scheduled, now time.Time) bool {
	if scheduled.IsZero() {
		return false
	}
	return !scheduled.After(w.Cutoff(now))
}
