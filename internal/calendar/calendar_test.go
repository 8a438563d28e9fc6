package calendar

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"attendbot/internal/config"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:ev-1
DTSTAMP:20260105T000000Z
DTSTART:20260107T100000Z
DTEND:20260107T110000Z
SUMMARY:Algorithms Lecture
END:VEVENT
BEGIN:VEVENT
UID:ev-2
DTSTAMP:20260105T000000Z
DTSTART:20260107T140000Z
DTEND:20260107T150000Z
SUMMARY:Careers Workshop (Optional Attendance)
END:VEVENT
END:VCALENDAR
`

const recurringICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:ev-3
DTSTAMP:20260105T000000Z
DTSTART:20260106T090000Z
DTEND:20260106T100000Z
RRULE:FREQ=WEEKLY;COUNT=3
SUMMARY:Databases Lab
END:VEVENT
END:VCALENDAR
`

func TestDiscoverExactlyOne(t *testing.T) {
	dir := t.TempDir()

	if _, err := Discover(dir); !errors.Is(err, config.ErrConfig) {
		t.Fatalf("empty dir: err = %v, want ErrConfig", err)
	}

	want := filepath.Join(dir, "a.ics")
	if err := os.WriteFile(want, []byte(sampleICS), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Discover(dir)
	if err != nil {
		t.Fatalf("one file: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.ics"), []byte(sampleICS), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Discover(dir); !errors.Is(err, config.ErrConfig) {
		t.Fatalf("two files: err = %v, want ErrConfig", err)
	}
}

func TestDiscoverCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ics")
	if _, err := Discover(dir); !errors.Is(err, config.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir not created: %v", err)
	}
}

func TestParseSimple(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	evs, err := Parse(strings.NewReader(sampleICS), now, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Name != "Algorithms Lecture" {
		t.Fatalf("name = %q", evs[0].Name)
	}
	wantStart := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)
	if !evs[0].Start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", evs[0].Start, wantStart)
	}
	if got := evs[0].End.Sub(evs[0].Start); got != time.Hour {
		t.Fatalf("duration = %v, want 1h", got)
	}
}

func TestParseExpandsRecurrence(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	evs, err := Parse(strings.NewReader(recurringICS), now, 60*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(evs))
	}
	for i, ev := range evs {
		wantStart := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i)
		if !ev.Start.Equal(wantStart) {
			t.Fatalf("occurrence %d start = %v, want %v", i, ev.Start, wantStart)
		}
		if got := ev.End.Sub(ev.Start); got != time.Hour {
			t.Fatalf("occurrence %d duration = %v, want 1h", i, got)
		}
	}
}

func TestFilter(t *testing.T) {
	now := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	evs := []Event{
		{Name: "Past Lecture", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)},
		{Name: "Careers Workshop (Optional Attendance)", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)},
		{Name: "Algorithms Lecture", Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)},
	}
	kept := Filter(evs, now, DefaultExcludeMarker)
	if len(kept) != 1 || kept[0].Name != "Algorithms Lecture" {
		t.Fatalf("kept = %+v", kept)
	}

	// Empty marker keeps the optional event.
	kept = Filter(evs, now, "")
	if len(kept) != 2 {
		t.Fatalf("empty marker: kept %d, want 2", len(kept))
	}
}

func TestDownloadReplacesSingleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.ics"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Download(t.Context(), srv.URL, dir, false); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.ics"))
	if len(matches) != 1 {
		t.Fatalf("dir holds %d .ics files, want 1: %v", len(matches), matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sampleICS {
		t.Fatal("downloaded content mismatch")
	}
}
