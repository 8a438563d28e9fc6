package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "attendbot/pkg/logx"
)

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"06:30", 6, 30, false},
		{" 23:59 ", 23, 59, false},
		{"0:05", 0, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, c := range cases {
		h, m, err := ParseHHMM(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || h != c.h || m != c.m {
			t.Errorf("ParseHHMM(%q) = (%d, %d, %v), want (%d, %d)", c.in, h, m, err, c.h, c.m)
		}
	}
}

func TestIntervalJobRuns(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())

	var runs atomic.Int64
	if err := s.AddInterval("tick", 20*time.Millisecond, time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	s.Start(t.Context())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}

func TestFailedJobRecordedInHistory(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())

	if err := s.AddInterval("broken", 20*time.Millisecond, time.Second, func(context.Context) error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	s.Start(t.Context())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(s.History()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hist := s.History()
	if len(hist) == 0 {
		t.Fatal("no history recorded")
	}
	if hist[0].Name != "broken" || hist[0].Error != "boom" {
		t.Fatalf("history = %+v", hist[0])
	}
}

func TestAddDailyRejectsBadTime(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	if err := s.AddDaily("summary", "25:00", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid time of day")
	}
}

func TestAddCronRejectsBadSpec(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	if err := s.AddCron("bad", "not a spec", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	s.Start(t.Context())
	s.Stop(context.Background())
	s.Stop(context.Background())
}
