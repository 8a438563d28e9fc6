package adapter

import (
	"strings"
	"testing"

	logx "attendbot/pkg/logx"
)

func TestSplitShortTextUnchanged(t *testing.T) {
	got := splitTelegramText("hello", 100, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitTelegramText(text, 100, "")
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
	if strings.Contains(got[0], "b") {
		t.Fatalf("first chunk crossed the newline boundary: %q", got[0])
	}
}

func TestSplitAvoidsDanglingHTMLTag(t *testing.T) {
	text := strings.Repeat("x", 95) + "<b>bold"
	got := splitTelegramText(text, 100, "HTML")
	for _, c := range got {
		open := strings.Count(c, "<")
		closed := strings.Count(c, ">")
		if open > closed+1 {
			t.Fatalf("chunk has dangling tags: %q", c)
		}
	}
	if strings.HasSuffix(got[0], "<") || strings.HasSuffix(got[0], "<b") {
		t.Fatalf("chunk ends mid-tag: %q", got[0])
	}
}

func TestSplitNoEmptyChunks(t *testing.T) {
	text := strings.Repeat("line\n", 200)
	for _, c := range splitTelegramText(text, 50, "") {
		if c == "" {
			t.Fatal("empty chunk produced")
		}
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
