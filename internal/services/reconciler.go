package services

import (
	"context"
	"log"
	"time"
)

type LapsedExpirer interface {
	ExpireLapsed(ctx context.Context)
}

// Reconciler drives the periodic sweep that revokes lapsed subscriptions.
// It never advances anyone's end date, it only reacts to windows that have
// already closed.
type Reconciler struct {
	svc      LapsedExpirer
	interval time.Duration
}

func NewReconciler(svc LapsedExpirer, interval time.Duration) *Reconciler {
	return &Reconciler{svc: svc, interval: interval}
}

// Tick runs a single pass. Exposed separately so tests can drive many ticks
// without real delays.
func (r *Reconciler) Tick(ctx context.Context) {
	r.svc.ExpireLapsed(ctx)
}

// Start launches the sweep loop: one pass immediately, then one per interval,
// until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.Tick(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Println("[SCHEDULER] Running lapse sweep...")
				r.Tick(ctx)
			case <-ctx.Done():
				log.Println("[SCHEDULER] Shutdown")
				return
			}
		}
	}()
}
