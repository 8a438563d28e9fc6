package transport

import "context"

// ChatTarget identifies where to deliver a message.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string // e.g. "HTML", "MarkdownV2"
	DisablePreview bool
}

// Notification is a queued outbound message.
type Notification struct {
	Channel  string // logical source, e.g. "attempt", "summary"
	Priority int    // higher = more urgent
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Adapter is an outbound messaging transport.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
