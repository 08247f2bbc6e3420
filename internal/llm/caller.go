package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTimeout is the per-call timeout applied when none is configured.
const DefaultTimeout = 300 * time.Second

// CallOutcome labels one finished call for observers.
type CallOutcome string

// CallOutcome values.
const (
	OutcomeOK      CallOutcome = "ok"
	OutcomeError   CallOutcome = "error"
	OutcomeTimeout CallOutcome = "timeout"
	OutcomeEmpty   CallOutcome = "empty"
)

// Observer receives one event per finished call.
type Observer func(outcome CallOutcome, elapsed time.Duration)

// Caller wraps a Client with a per-call timeout, reply normalization, and optional retry.
// A nil Client is allowed and reports ErrUnavailable from every call.
type Caller struct {
	client   Client
	timeout  time.Duration
	retry    RetryConfig
	logger   *log.Logger
	observer Observer
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) CallerOption {
	return func(c *Caller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry sets the retry configuration used by TextWithRetry.
func WithRetry(cfg RetryConfig) CallerOption {
	return func(c *Caller) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) CallerOption {
	return func(c *Caller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a call observer.
func WithObserver(fn Observer) CallerOption {
	return func(c *Caller) {
		c.observer = fn
	}
}

// NewCaller constructs a Caller around client.
func NewCaller(client Client, opts ...CallerOption) *Caller {
	c := &Caller{
		client:  client,
		timeout: DefaultTimeout,
		retry:   DefaultRetryConfig(),
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether a client is configured.
func (c *Caller) Available() bool {
	return c != nil && c.client != nil
}

// RetryConfig returns the configured retry policy.
func (c *Caller) RetryConfig() RetryConfig {
	if c == nil {
		return DefaultRetryConfig()
	}
	return c.retry
}

// Text performs one call and returns the normalized reply text.
// A timeout or empty reply is reported as a transient error with "" text, never a partial reply.
func (c *Caller) Text(ctx context.Context, messages []Message) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}
	started := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.client.Chat(callCtx, messages)
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: callCtx.Err()}
	}

	switch {
	case res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil:
		c.observe(OutcomeTimeout, started)
		c.logger.Warn("llm call timed out", "timeout", c.timeout.String())
		return "", NewTransientError(ErrTimeout)
	case res.err != nil:
		c.observe(OutcomeError, started)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", res.err
	}

	text := strings.TrimSpace(Text(res.resp))
	if text == "" {
		c.observe(OutcomeEmpty, started)
		return "", NewTransientError(ErrEmptyReply)
	}
	c.observe(OutcomeOK, started)
	return text, nil
}

// TextWithRetry retries Text with exponential backoff and returns the reply plus the attempt that produced it.
func (c *Caller) TextWithRetry(ctx context.Context, messages []Message) (string, int, error) {
	var (
		text string
		used int
	)
	err := Retry(ctx, c.RetryConfig(), func(ctx context.Context, attempt int) error {
		used = attempt
		out, err := c.Text(ctx, messages)
		if errors.Is(err, ErrUnavailable) {
			return NewFatalError(err)
		}
		if err != nil {
			return err
		}
		text = out
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("llm call failed; retrying", "attempt", attempt, "wait", wait.String(), "err", err)
	})
	if err != nil {
		return "", used, err
	}
	return text, used, nil
}

func (c *Caller) observe(outcome CallOutcome, started time.Time) {
	if c.observer != nil {
		c.observer(outcome, time.Since(started))
	}
}
