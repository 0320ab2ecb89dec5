package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConsoleSender writes messages to the log instead of a phone network. It
// also keeps them in memory so development tools and tests can read codes
// back. It is not meant for production.
type ConsoleSender struct {
	logger zerolog.Logger

	mu   sync.Mutex
	sent []SentMessage
}

// SentMessage is one message accepted by a [ConsoleSender].
type SentMessage struct {
	Ref  string
	To   string
	Text string
}

func NewConsoleSender(logger zerolog.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (c *ConsoleSender) Send(ctx context.Context, to, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := "console-" + uuid.NewString()
	c.logger.Info().Str("to", to).Str("ref", ref).Str("text", text).Msg("console sms")

	c.mu.Lock()
	c.sent = append(c.sent, SentMessage{Ref: ref, To: to, Text: text})
	c.mu.Unlock()
	return ref, nil
}

// Sent returns a copy of every message accepted so far.
func (c *ConsoleSender) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Last returns the most recent message to phone.
func (c *ConsoleSender) Last(to string) (SentMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].To == to {
			return c.sent[i], true
		}
	}
	return SentMessage{}, false
}
