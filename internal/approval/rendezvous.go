// Package approval implements the wait-for-approval rendezvous between a
// running pipeline and the stateless HTTP request that approves its plan.
// The two sides share nothing but the durable session store, so the wait
// is a bounded poll of that store rather than a channel handoff.
package approval

import (
	"context"
	"log"
	"time"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

// Result is the outcome of a rendezvous wait.
type Result int

const (
	Approved Result = iota
	TimedOut
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Approved:
		return "approved"
	case TimedOut:
		return "timed_out"
	default:
		return "cancelled"
	}
}

// Rendezvous polls the session store until the plan is approved, the
// session is cancelled, or the poll budget runs out. Interval and
// timeout are injected; the poll budget is ceil(timeout / interval).
type Rendezvous struct {
	store    store.SessionStore
	interval time.Duration
	timeout  time.Duration
}

func NewRendezvous(sessionStore store.SessionStore, interval, timeout time.Duration) *Rendezvous {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Rendezvous{
		store:    sessionStore,
		interval: interval,
		timeout:  timeout,
	}
}

// Wait blocks until approval, cancellation, or timeout. Context
// cancellation counts as Cancelled. Each poll sleeps a full interval
// before checking, so a budget of N polls resolves TimedOut after
// exactly N intervals and never earlier.
func (r *Rendezvous) Wait(ctx context.Context, sessionID string) Result {
	polls := int((r.timeout + r.interval - 1) / r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for i := 0; i < polls; i++ {
		select {
		case <-ctx.Done():
			return Cancelled
		case <-ticker.C:
		}

		session, err := r.store.Get(ctx, sessionID)
		if err != nil {
			// transient store failure: burn the poll, keep waiting
			log.Printf("approval poll failed for session %s: %v", sessionID, err)
			continue
		}

		if session.Status == model.StatusCancelled {
			return Cancelled
		}
		if session.PlanApproved {
			return Approved
		}
	}

	return TimedOut
}
