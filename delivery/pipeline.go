package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const (
	defaultSendTimeout = 15 * time.Second
	defaultQueueSize   = 1024
	defaultWorkers     = 4
	defaultMaxRetries  = 3
	defaultRetryBase   = time.Minute
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrClosed    = errors.New("delivery pipeline closed")
)

// Config controls a [Pipeline].
type Config struct {
	QueueSize int
	Workers   int
	// MaxRetries bounds retries after the first attempt.
	MaxRetries int
	// RetryBase is the first backoff delay; each retry doubles it.
	RetryBase time.Duration
	// MaxInBackoff bounds messages waiting between retries. Defaults to
	// QueueSize.
	MaxInBackoff int
	// AttemptTimeout bounds a single Send call.
	AttemptTimeout time.Duration
	// OnResult, when set, is called once per message after its final attempt.
	OnResult func(Result)
	// After replaces time.After in tests.
	After func(time.Duration) <-chan time.Time
}

// Result is the final outcome of one message.
type Result struct {
	Message  Message
	Ref      string
	Attempts int
	Err      error
}

// Pipeline delivers messages asynchronously. First attempts run on a fixed
// worker pool; a message that needs retries waits out its backoff on its own
// goroutine, so it never holds a worker.
type Pipeline struct {
	sender Sender
	cfg    Config
	logger zerolog.Logger

	queue    chan Message
	retrying chan struct{}
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline starts cfg.Workers workers draining the queue into sender.
func NewPipeline(sender Sender, cfg Config, logger zerolog.Logger) (*Pipeline, error) {
	if sender == nil {
		return nil, errors.New("delivery pipeline requires a sender")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultSendTimeout
	}
	if cfg.MaxInBackoff <= 0 {
		cfg.MaxInBackoff = cfg.QueueSize
	}
	if cfg.After == nil {
		cfg.After = time.After
	}

	p := &Pipeline{
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan Message, cfg.QueueSize),
		retrying: make(chan struct{}, cfg.MaxInBackoff),
		done:     make(chan struct{}),
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p, nil
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:      defaultQueueSize,
		Workers:        defaultWorkers,
		MaxRetries:     defaultMaxRetries,
		RetryBase:      defaultRetryBase,
		AttemptTimeout: defaultSendTimeout,
	}
}

// Enqueue queues msg without blocking.
func (p *Pipeline) Enqueue(msg Message) error {
	if p == nil {
		return ErrClosed
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of messages queued for a first attempt or
// waiting out a retry backoff.
func (p *Pipeline) Pending() int {
	if p == nil {
		return 0
	}
	return len(p.queue) + len(p.retrying)
}

// Close stops intake and waits for queued messages to drain or ctx to end.
// Pending backoff waits are abandoned once ctx is done.
func (p *Pipeline) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		p.stop()
		<-finished
		return ctx.Err()
	}
}

func (p *Pipeline) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for msg := range p.queue {
		p.first(msg)
	}
}

// first makes the initial attempt on a worker. A transient failure moves the
// message to its own retry goroutine so the worker returns to the queue.
func (p *Pipeline) first(msg Message) {
	res := Result{Message: msg, Attempts: 1}
	res.Ref, res.Err = p.attempt(msg)
	if res.Err == nil || !IsTransient(res.Err) || p.cfg.MaxRetries == 0 {
		p.report(res)
		return
	}

	select {
	case p.retrying <- struct{}{}:
	default:
		p.logger.Warn().
			Str("kind", string(msg.Kind)).
			Int("in_backoff", len(p.retrying)).
			Msg("sms retry capacity exhausted")
		p.report(res)
		return
	}
	p.wg.Go(func() {
		defer func() { <-p.retrying }()
		p.report(p.retry(res))
	})
}

// retry attempts res.Message again after each backoff until the outcome is
// not transient or MaxRetries is spent. A stopped pipeline ends the wait.
func (p *Pipeline) retry(res Result) Result {
	b := p.newBackOff()
	for res.Attempts <= p.cfg.MaxRetries {
		delay := b.NextBackOff()
		p.logger.Debug().
			Err(res.Err).
			Str("kind", string(res.Message.Kind)).
			Int("attempt", res.Attempts).
			Dur("backoff", delay).
			Msg("sms delivery retry scheduled")

		select {
		case <-p.cfg.After(delay):
		case <-p.done:
			return res
		}

		res.Attempts++
		res.Ref, res.Err = p.attempt(res.Message)
		if res.Err == nil || !IsTransient(res.Err) {
			return res
		}
	}
	return res
}

func (p *Pipeline) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: p.cfg.RetryBase,
		Multiplier:      2,
		MaxInterval:     p.cfg.RetryBase << min(p.cfg.MaxRetries, 16),
	}
	b.Reset()
	return b
}

func (p *Pipeline) attempt(msg Message) (ref string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AttemptTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.New("delivery sender panicked")
		}
	}()
	return p.sender.Send(ctx, msg.To, msg.Text)
}

func (p *Pipeline) report(res Result) {
	if res.Err != nil {
		p.logger.Error().
			Err(res.Err).
			Str("kind", string(res.Message.Kind)).
			Str("purpose", res.Message.Purpose).
			Int("attempts", res.Attempts).
			Msg("sms delivery failed")
	} else {
		p.logger.Debug().
			Str("kind", string(res.Message.Kind)).
			Str("ref", res.Ref).
			Int("attempts", res.Attempts).
			Msg("sms delivered")
	}
	if p.cfg.OnResult != nil {
		p.cfg.OnResult(res)
	}
}
