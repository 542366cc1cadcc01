package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Options{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Label: "test"}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fast, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("dial tcp: %w", syscall.ECONNRESET)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonTransient(t *testing.T) {
	calls := 0
	boom := errors.New("validation failed")
	_, err := Do(context.Background(), fast, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fast, func(context.Context) error {
		calls++
		return &StatusError{Op: "fetch", Status: 503}
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.Status)
	assert.Equal(t, 3, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	opts := Options{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context) error {
			calls++
			return Transient(errors.New("flaky"))
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop after cancellation")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped marker", fmt.Errorf("outer: %w", Transient(errors.New("x"))), true},
		{"429", &StatusError{Status: 429}, true},
		{"502", &StatusError{Status: 502}, true},
		{"404", &StatusError{Status: 404}, false},
		{"401", &StatusError{Status: 401}, false},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"socket hang up text", errors.New("request failed: socket hang up"), true},
		{"timeout text", errors.New("read tcp 1.2.3.4: i/o timeout"), true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("bad input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestDelayBounds(t *testing.T) {
	base, max := time.Second, 10*time.Second
	for attempt := 1; attempt <= 6; attempt++ {
		want := base << (attempt - 1)
		if want > max {
			want = max
		}
		for i := 0; i < 50; i++ {
			d := Delay(attempt, base, max)
			assert.GreaterOrEqual(t, d, want/2, "attempt %d", attempt)
			assert.LessOrEqual(t, d, want, "attempt %d", attempt)
		}
	}
}
