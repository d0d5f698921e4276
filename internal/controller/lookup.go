package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lyzr/wfcompiler/internal/logger"
	"github.com/lyzr/wfcompiler/internal/registry"
)

// LookupLoop drives the controller's two background cadences: picking up
// newly ACCEPTED submissions, and scanning for submissions orphaned by a
// crashed worker. Both tickers are coalesced — a slow run never overlaps
// with its own next tick — and both can be nudged on demand.
type LookupLoop struct {
	ctl *Controller
	log *logger.Logger

	lookupInterval time.Duration
	orphanInterval time.Duration

	triggerLookup chan struct{}
	triggerOrphan chan struct{}

	lookupBusy atomic.Bool
	orphanBusy atomic.Bool
}

// NewLookupLoop builds a LookupLoop for the given controller.
func NewLookupLoop(ctl *Controller, log *logger.Logger, lookupInterval, orphanInterval time.Duration) *LookupLoop {
	return &LookupLoop{
		ctl:            ctl,
		log:            log,
		lookupInterval: lookupInterval,
		orphanInterval: orphanInterval,
		triggerLookup:  make(chan struct{}, 1),
		triggerOrphan:  make(chan struct{}, 1),
	}
}

// TriggerLookup nudges the new-submission scan to run on its next
// opportunity instead of waiting for the ticker. Multiple nudges before the
// loop wakes up coalesce into one.
func (l *LookupLoop) TriggerLookup() {
	select {
	case l.triggerLookup <- struct{}{}:
	default:
	}
}

// TriggerOrphanScan nudges the orphan scan the same way.
func (l *LookupLoop) TriggerOrphanScan() {
	select {
	case l.triggerOrphan <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, driving both cadences concurrently.
func (l *LookupLoop) Run(ctx context.Context) {
	lookupTicker := time.NewTicker(l.lookupInterval)
	orphanTicker := time.NewTicker(l.orphanInterval)
	defer lookupTicker.Stop()
	defer orphanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lookupTicker.C:
			l.runLookup(ctx)
		case <-l.triggerLookup:
			l.runLookup(ctx)
		case <-orphanTicker.C:
			l.runOrphanScan(ctx)
		case <-l.triggerOrphan:
			l.runOrphanScan(ctx)
		}
	}
}

func (l *LookupLoop) runLookup(ctx context.Context) {
	if !l.lookupBusy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer l.lookupBusy.Store(false)
		for {
			sub, err := l.ctl.submissions.FetchNext(ctx, registry.StatusAccepted, registry.StatusRunning)
			if err != nil {
				l.log.Error("fetch next submission failed", "error", err)
				return
			}
			if sub == nil {
				return
			}
			if err := l.ctl.RunSubmission(ctx, sub.ID); err != nil {
				l.log.Error("submission run failed", "submission_id", sub.ID, "error", err)
			}
		}
	}()
}

func (l *LookupLoop) runOrphanScan(ctx context.Context) {
	if !l.orphanBusy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer l.orphanBusy.Store(false)
		if err := l.ctl.RecoverOrphans(ctx); err != nil {
			l.log.Error("orphan scan failed", "error", err)
		}
	}()
}
