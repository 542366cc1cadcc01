package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

// Options controls Do. Zero fields fall back to the defaults below.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Label prefixes the retry log line, e.g. "github tree owner/repo".
	Label string
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Label == "" {
		o.Label = "operation"
	}
	return o
}

// TransientError marks an error as safe to retry regardless of its text.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// StatusError is a non-2xx HTTP response from an upstream service.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(status int) bool {
	return status == 429 || status >= 500
}

var transientSignatures = []string{
	"connection reset",
	"connection refused",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
	"broken pipe",
	"unexpected eof",
	"tls handshake timeout",
	"econnreset",
	"econnrefused",
	"etimedout",
	"enetunreach",
	"socket hang up",
	"fetch failed",
}

// IsTransient classifies err as a network-level or server-side failure that
// a later attempt may not hit.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsTransientStatus(se.Status)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// Delay returns the wait before the retry that follows attempt (1-based):
// base*2^(attempt-1) capped at max, scaled by a random factor in [0.5, 1.0].
func Delay(attempt int, base, max time.Duration) time.Duration {
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
}

// Do runs fn until it succeeds, returns a non-transient error, or runs out of
// attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= opts.MaxAttempts || !IsTransient(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, err
		}
		wait := Delay(attempt, opts.BaseDelay, opts.MaxDelay)
		log.Printf("%s: attempt %d/%d failed (%v), retrying in %s", opts.Label, attempt, opts.MaxAttempts, err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return zero, err
		case <-time.After(wait):
		}
	}
}

// Run is Do for functions without a result value.
func Run(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
