package runner

import (
	"context"
	"errors"
	"time"
)

// deadlineGate bounds every blocking wait of one run with a single absolute
// deadline computed at run start. A zero gate leaves waits unbounded.
type deadlineGate struct {
	deadline time.Time
}

func newDeadlineGate(timeout time.Duration) deadlineGate {
	if timeout <= 0 {
		return deadlineGate{}
	}
	return deadlineGate{deadline: time.Now().Add(timeout)}
}

// Bind derives the run context every wait goes through. With a deadline
// configured, expiry surfaces as context.DeadlineExceeded on that context.
func (g deadlineGate) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	if g.deadline.IsZero() {
		return context.WithCancel(parent)
	}
	return context.WithDeadline(parent, g.deadline)
}

// Expired distinguishes a deadline expiry from any other wait interruption.
func (g deadlineGate) Expired(err error) bool {
	return !g.deadline.IsZero() && errors.Is(err, context.DeadlineExceeded)
}

// WaitExit blocks until the child has been reaped or the bound context
// ends, whichever comes first.
func (g deadlineGate) WaitExit(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
