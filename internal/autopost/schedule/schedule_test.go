package schedule

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestWindowBoundary(t *testing.T) {
	w := NewWindow(IST(), 60*time.Second)
	now := time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)
	wallNow := w.Zone.Wall(now)

	tests := []struct {
		name      string
		scheduled time.Time
		want      bool
	}{
		{name: "one second ago", scheduled: wallNow.Add(-time.Second), want: true},
		{name: "exactly now", scheduled: wallNow, want: true},
		{name: "buffer minus one second", scheduled: wallNow.Add(59 * time.Second), want: true},
		{name: "exactly buffer", scheduled: wallNow.Add(60 * time.Second), want: true},
		{name: "buffer plus one second", scheduled: wallNow.Add(61 * time.Second), want: false},
		{name: "zero time", scheduled: time.Time{}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := w.IsDue(tc.scheduled, now); got != tc.want {
				t.Fatalf("IsDue(%s) = %v, want %v", tc.scheduled, got, tc.want)
			}
		})
	}
}

func TestNaiveISTScheduleIsJudgedInIST(t *testing.T) {
	w := NewWindow(IST(), 60*time.Second)

	// stored by the web app as the wall-clock value 2024-01-01 00:00 IST
	stored, ok := w.Zone.Parse(primitive.NewDateTimeFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if !ok {
		t.Fatalf("expected stored date to parse")
	}

	// 2024-01-01 00:00 IST == 2023-12-31 18:30 UTC
	reached := time.Date(2023, 12, 31, 18, 30, 0, 0, time.UTC)
	if !w.IsDue(stored, reached) {
		t.Fatalf("expected post to be due once IST wall clock reaches its schedule")
	}

	twoMinutesEarly := reached.Add(-2 * time.Minute)
	if w.IsDue(stored, twoMinutesEarly) {
		t.Fatalf("post must not be due two minutes before its IST schedule")
	}

	naiveString, ok := w.Zone.Parse("2024-01-01T00:00:00")
	if !ok || !naiveString.Equal(stored) {
		t.Fatalf("naive string should match naive date: got %s, want %s", naiveString, stored)
	}
}

func TestParseEncodingsOfOneValueAgree(t *testing.T) {
	z := IST()
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
	}{
		{name: "bson date", value: primitive.NewDateTimeFromTime(want)},
		{name: "time value", value: want},
		{name: "rfc3339 utc", value: "2024-01-01T00:00:00Z"},
		{name: "rfc3339 zero offset", value: "2024-01-01T00:00:00+00:00"},
		{name: "epoch millis", value: want.UnixMilli()},
		{name: "epoch millis float", value: float64(want.UnixMilli())},
		{name: "epoch millis string", value: "1704067200000"},
		{name: "naive seconds", value: "2024-01-01T00:00:00"},
		{name: "naive minutes", value: "2024-01-01T00:00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := z.Parse(tc.value)
			if !ok {
				t.Fatalf("expected %v to parse", tc.value)
			}
			if !got.Equal(want) {
				t.Fatalf("Parse(%v) = %s, want %s", tc.value, got, want)
			}
		})
	}
}

func TestParseConvertsNonUTCOffsetsToZone(t *testing.T) {
	z := IST()

	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{
			name:  "ist offset",
			value: "2024-01-01T00:00:00+05:30",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "us eastern offset",
			value: "2023-12-31T08:00:00-05:00",
			want:  time.Date(2023, 12, 31, 18, 30, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := z.Parse(tc.value)
			if !ok {
				t.Fatalf("expected %v to parse", tc.value)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Parse(%v) = %s, want %s", tc.value, got, tc.want)
			}
		})
	}
}

func TestParseRejectsUnknownShapes(t *testing.T) {
	z := IST()
	for _, v := range []interface{}{nil, "", "tomorrow", true, []string{"2024-01-01"}} {
		if _, ok := z.Parse(v); ok {
			t.Fatalf("expected %v to be rejected", v)
		}
	}
}
