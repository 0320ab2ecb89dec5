package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sender is the delivery capability. ref is the provider's message id, used
// only for diagnostics.
type Sender interface {
	Send(ctx context.Context, to, text string) (ref string, err error)
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(ctx context.Context, to, text string) (string, error)

func (f SenderFunc) Send(ctx context.Context, to, text string) (string, error) {
	return f(ctx, to, text)
}

// ProviderKind is the closed set of delivery providers.
type ProviderKind uint8

const (
	ProviderConsole ProviderKind = iota + 1
	ProviderHTTP
	ProviderTwilio
)

var ErrUnknownProvider = errors.New("unknown delivery provider")

func (k ProviderKind) String() string {
	switch k {
	case ProviderConsole:
		return "console"
	case ProviderHTTP:
		return "http"
	case ProviderTwilio:
		return "twilio"
	default:
		return "unknown"
	}
}

// ParseProviderKind maps a configuration value to a [ProviderKind].
func ParseProviderKind(s string) (ProviderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console", "mock":
		return ProviderConsole, nil
	case "http", "gateway":
		return ProviderHTTP, nil
	case "twilio":
		return ProviderTwilio, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// ProviderConfig configures the provider selected by Kind.
type ProviderConfig struct {
	Kind ProviderKind
	// BaseURL is the gateway endpoint (http) or API root (twilio).
	BaseURL string
	// APIKey is the gateway bearer key (http) or account SID (twilio).
	APIKey string
	// APISecret is the twilio auth token.
	APISecret string
	// From is the sender id or number.
	From    string
	Timeout time.Duration
}

// NewSender builds the [Sender] for cfg.Kind.
func NewSender(cfg ProviderConfig, logger zerolog.Logger, client *http.Client) (Sender, error) {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultSendTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	switch cfg.Kind {
	case ProviderConsole:
		return NewConsoleSender(logger), nil
	case ProviderHTTP:
		return NewHTTPSender(cfg.BaseURL, cfg.APIKey, cfg.From, client)
	case ProviderTwilio:
		return NewTwilioSender(cfg.BaseURL, cfg.APIKey, cfg.APISecret, cfg.From, client)
	default:
		return nil, ErrUnknownProvider
	}
}

// SendError is a provider rejection. Temporary marks failures worth retrying.
type SendError struct {
	Provider  string
	Status    int
	Reason    string
	Temporary bool
}

func (e *SendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Reason)
	}
	return e.Provider + ": " + e.Reason
}

func statusError(provider string, status int, reason string) *SendError {
	return &SendError{
		Provider:  provider,
		Status:    status,
		Reason:    reason,
		Temporary: status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout,
	}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Temporary
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
