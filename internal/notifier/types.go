package notifier

import (
	"context"
	"time"
)

// Config controls delivery.
type Config struct {
	Enabled       bool
	ChatID        int64
	ThreadID      int
	OnSuccess     bool
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

// Sender is a message transport.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}
