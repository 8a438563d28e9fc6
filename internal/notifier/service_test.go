package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "attendbot/internal/transport"
	logx "attendbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	failLeft int
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLeft > 0 {
		f.failLeft--
		return kit.MessageRef{}, errors.New("boom")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func fastConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     16,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func note(text string) kit.Notification {
	return kit.Notification{Channel: "attempt", Target: kit.ChatTarget{ChatID: 42}, Text: text}
}

func TestNotifyDisabled(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeAdapter{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), note("x")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestNotifyBeforeStart(t *testing.T) {
	s := New(fastConfig(), &fakeAdapter{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), note("x")); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestSendAndHistory(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(fastConfig(), ad, logx.Nop(), nil)
	s.Start(t.Context())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), note("class marked")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(ad.texts()) == 1 })

	hist := s.Snapshot()
	if len(hist) != 1 || hist[0].Text != "class marked" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	ad := &fakeAdapter{failLeft: 2}
	s := New(fastConfig(), ad, logx.Nop(), nil)
	s.Start(t.Context())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), note("retry me")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(ad.texts()) == 1 })
}

func TestDedupSuppressesRepeat(t *testing.T) {
	ad := &fakeAdapter{}
	cfg := fastConfig()
	cfg.DedupWindow = time.Minute
	s := New(cfg, ad, logx.Nop(), nil)
	s.Start(t.Context())
	defer s.Stop(context.Background())

	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), note("same text")); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return len(ad.texts()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := len(ad.texts()); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
}

func TestPriorityPrefix(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(fastConfig(), ad, logx.Nop(), nil)
	s.Start(t.Context())
	defer s.Stop(context.Background())

	n := note("login failed")
	n.Priority = 9
	if err := s.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(ad.texts()) == 1 })
	if got := ad.texts()[0]; !strings.HasSuffix(got, "login failed") || got == "login failed" {
		t.Fatalf("expected priority prefix, got %q", got)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(fastConfig(), ad, logx.Nop(), nil)
	s.Start(t.Context())

	for i := 0; i < 5; i++ {
		if err := s.Notify(context.Background(), note("msg "+strings.Repeat("x", i+1))); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	s.Stop(context.Background())
	if got := len(ad.texts()); got != 5 {
		t.Fatalf("drained %d messages, want 5", got)
	}
	if err := s.Notify(context.Background(), note("late")); !errors.Is(err, ErrStopped) {
		t.Fatalf("post-stop err = %v, want ErrStopped", err)
	}
}

func TestRetryDelayBounded(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
