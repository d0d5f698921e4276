// Package controller drives a submission from ACCEPTED through to a
// terminal status, repeatedly calling into the compiler, persisting its
// checkpoints, and polling process-chain results, with crash recovery for
// submissions orphaned mid-run.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/wfcompiler/internal/compiler"
	"github.com/lyzr/wfcompiler/internal/logger"
	"github.com/lyzr/wfcompiler/internal/registry"
	"github.com/lyzr/wfcompiler/internal/wferrors"
	"github.com/lyzr/wfcompiler/internal/workflow"
)

// Config bounds the paths the compiler writes under and the timings the
// controller polls and leases on.
type Config struct {
	TmpPath          string
	OutPath          string
	LookupInterval   time.Duration
	OrphanInterval   time.Duration
	LeaseTTL         time.Duration
}

// Controller owns the per-submission execution loop described by the
// recovery-aware execution model: one submission at a time, one exclusive
// lease at a time, checkpointed between every compiler round.
type Controller struct {
	log         *logger.Logger
	submissions registry.SubmissionRegistry
	chains      registry.ProcessChainRegistry
	services    registry.ServiceMetadataRegistry
	oracle      registry.OutputAdapterOracle
	leases      registry.LeaseManager
	signal      registry.SignalBus
	cfg         Config
	metrics     *Metrics
}

// New constructs a Controller from its external collaborators.
func New(log *logger.Logger, submissions registry.SubmissionRegistry, chains registry.ProcessChainRegistry, services registry.ServiceMetadataRegistry, oracle registry.OutputAdapterOracle, leases registry.LeaseManager, signal registry.SignalBus, cfg Config) *Controller {
	return &Controller{
		log:         log,
		submissions: submissions,
		chains:      chains,
		services:    services,
		oracle:      oracle,
		leases:      leases,
		signal:      signal,
		cfg:         cfg,
		metrics:     NewMetrics(),
	}
}

// Metrics exposes the controller's own run counters for health/status
// reporting.
func (ctl *Controller) Metrics() *Metrics {
	return ctl.metrics
}

// RunSubmission drives one submission to completion, acquiring its
// exclusive lease first and releasing it on every exit path, including a
// panic recovered from the run itself.
func (ctl *Controller) RunSubmission(ctx context.Context, submissionID string) error {
	lease, err := ctl.leases.TryLock(ctx, submissionID, ctl.cfg.LeaseTTL)
	if err != nil {
		if wferrors.Is(err, wferrors.KindLeaseUnavailable) {
			ctl.log.Debug("submission lease unavailable, skipping", "submission_id", submissionID)
			return nil
		}
		return fmt.Errorf("acquire lease for submission %s: %w", submissionID, err)
	}

	ctl.metrics.InFlight.Add(1)
	defer ctl.metrics.InFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			ctl.log.Error("submission loop panicked", "submission_id", submissionID, "panic", r)
		}
	}()
	defer func() {
		if releaseErr := lease.Release(context.Background()); releaseErr != nil {
			ctl.log.Error("release lease failed", "submission_id", submissionID, "error", releaseErr)
		}
	}()

	return ctl.runLocked(ctx, submissionID)
}

func (ctl *Controller) runLocked(ctx context.Context, submissionID string) error {
	submissionLog := ctl.log.WithSubmissionID(submissionID)

	sub, err := ctl.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("find submission %s: %w", submissionID, err)
	}
	if sub.Status == registry.StatusAccepted {
		if err := ctl.submissions.SetStatus(ctx, submissionID, registry.StatusRunning); err != nil {
			return fmt.Errorf("transition submission %s to RUNNING: %w", submissionID, err)
		}
	}

	services, err := ctl.services.FindServices(ctx)
	if err != nil {
		return fmt.Errorf("load service metadata: %w", err)
	}

	comp := compiler.New(sub.Workflow, ctl.cfg.TmpPath, ctl.cfg.OutPath, services,
		compiler.NewUUIDGenerator(), compiler.WithOutputAdapterOracle(ctl.oracle))

	rawState, err := ctl.submissions.GetExecutionState(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("get execution state for submission %s: %w", submissionID, err)
	}
	cp, err := decodeCheckpoint(rawState)
	if err != nil {
		return fmt.Errorf("decode checkpoint for submission %s: %w", submissionID, err)
	}

	var pendingChains []workflow.ProcessChain
	if cp != nil {
		if err := comp.LoadState(cp.CompilerState); err != nil {
			return fmt.Errorf("restore compiler state for submission %s: %w", submissionID, err)
		}
		pendingChains, err = ctl.recoverPendingChains(ctx, submissionID, cp.PendingChainIDs)
		if err != nil {
			return err
		}
		submissionLog.Info("resumed submission", "pending_chains", len(pendingChains))
	} else {
		if err := ctl.submissions.SetStartTime(ctx, submissionID, time.Now()); err != nil {
			return fmt.Errorf("set start time for submission %s: %w", submissionID, err)
		}
	}

	var (
		prevResults map[string][]any
		totalChains int
		totalErrors int
	)

	for {
		var chains []workflow.ProcessChain
		if pendingChains != nil {
			chains = pendingChains
			pendingChains = nil
		} else {
			var genErr error
			chains, genErr = comp.Generate(prevResults)
			ctl.metrics.GenerateRounds.Add(1)
			if genErr != nil {
				return fmt.Errorf("generate for submission %s: %w", submissionID, genErr)
			}
			if len(chains) > 0 {
				if err := ctl.chains.AddProcessChains(ctx, submissionID, chains); err != nil {
					return fmt.Errorf("persist process chains for submission %s: %w", submissionID, err)
				}
			}

			blob, err := comp.SaveState()
			if err != nil {
				return fmt.Errorf("save compiler state for submission %s: %w", submissionID, err)
			}
			ids := make([]string, len(chains))
			for i, c := range chains {
				ids[i] = c.ID
			}
			cpBlob, err := encodeCheckpoint(blob, ids)
			if err != nil {
				return err
			}
			if err := ctl.submissions.SetExecutionState(ctx, submissionID, cpBlob); err != nil {
				return fmt.Errorf("checkpoint submission %s: %w", submissionID, err)
			}

			if len(chains) > 0 {
				if err := ctl.signal.Publish(ctx, "process_chains.new"); err != nil {
					submissionLog.Warn("signal publish failed", "error", err)
				}
			}
		}

		if len(chains) == 0 {
			break
		}

		results, roundErrors, err := ctl.awaitChains(ctx, submissionID, chains)
		if err != nil {
			return fmt.Errorf("await process chains for submission %s: %w", submissionID, err)
		}
		totalChains += len(chains)
		totalErrors += roundErrors
		prevResults = results
	}

	status := classifyTerminal(comp.IsFinished(), totalErrors, totalChains)
	if status != registry.StatusSuccess && status != registry.StatusPartialSuccess {
		submissionLog.Error("submission did not execute completely", "is_finished", comp.IsFinished(), "errors", totalErrors, "total", totalChains)
	}

	if err := ctl.submissions.SetStatus(ctx, submissionID, status); err != nil {
		return fmt.Errorf("set final status for submission %s: %w", submissionID, err)
	}
	if err := ctl.submissions.SetEndTime(ctx, submissionID, time.Now()); err != nil {
		return fmt.Errorf("set end time for submission %s: %w", submissionID, err)
	}
	if err := ctl.submissions.SetExecutionState(ctx, submissionID, nil); err != nil {
		return fmt.Errorf("clear execution state for submission %s: %w", submissionID, err)
	}

	submissionLog.Info("submission finished", "status", status)
	return nil
}

// classifyTerminal implements the terminal-status decision table: a loop
// that exits with pending actions remaining is always an ERROR, regardless
// of how many chains succeeded along the way.
func classifyTerminal(isFinished bool, errs, total int) registry.SubmissionStatus {
	if !isFinished {
		return registry.StatusError
	}
	if total == 0 || errs == 0 {
		return registry.StatusSuccess
	}
	if errs == total {
		return registry.StatusError
	}
	return registry.StatusPartialSuccess
}

// recoverPendingChains resets any RUNNING/ERROR chains from the recovered
// batch back to REGISTERED for re-dispatch and returns the full batch in
// the order the checkpoint recorded their ids.
func (ctl *Controller) recoverPendingChains(ctx context.Context, submissionID string, ids []string) ([]workflow.ProcessChain, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := ctl.chains.FindBySubmissionID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("find process chains for submission %s: %w", submissionID, err)
	}
	byID := make(map[string]workflow.ProcessChain, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}

	statuses, err := ctl.chains.FindStatusesBySubmissionID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("find process chain statuses for submission %s: %w", submissionID, err)
	}

	recovered := make([]workflow.ProcessChain, 0, len(ids))
	for _, id := range ids {
		pc, ok := byID[id]
		if !ok {
			continue
		}
		if status := statuses[id]; status == registry.PCStatusRunning || status == registry.PCStatusError {
			if err := ctl.chains.SetStatus(ctx, id, registry.PCStatusRegistered); err != nil {
				return nil, fmt.Errorf("reset recovered chain %s: %w", id, err)
			}
			if err := ctl.chains.SetErrorMessage(ctx, id, ""); err != nil {
				return nil, fmt.Errorf("clear error message for recovered chain %s: %w", id, err)
			}
		}
		recovered = append(recovered, pc)
	}
	return recovered, nil
}

// awaitChains polls every chain's status at the lookup interval until all
// reach a terminal status, aggregating SUCCESS results and counting ERRORs.
func (ctl *Controller) awaitChains(ctx context.Context, submissionID string, chains []workflow.ProcessChain) (map[string][]any, int, error) {
	pending := make(map[string]bool, len(chains))
	for _, c := range chains {
		pending[c.ID] = true
	}

	results := make(map[string][]any)
	errCount := 0

	ticker := time.NewTicker(ctl.cfg.LookupInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-ticker.C:
		}

		for id := range pending {
			status, err := ctl.chains.GetStatus(ctx, id)
			if err != nil {
				return nil, 0, fmt.Errorf("poll process chain %s: %w", id, err)
			}
			switch status {
			case registry.PCStatusSuccess:
				r, err := ctl.chains.GetResults(ctx, id)
				if err != nil {
					return nil, 0, fmt.Errorf("get results for process chain %s: %w", id, err)
				}
				for k, vs := range r {
					results[k] = append(results[k], vs...)
				}
				delete(pending, id)
			case registry.PCStatusError:
				errCount++
				delete(pending, id)
			}
		}
	}

	if err := ctl.submissions.SetResults(ctx, submissionID, results); err != nil {
		ctl.log.Warn("persist intermediate results failed", "submission_id", submissionID, "error", err)
	}
	return results, errCount, nil
}

// RecoverOrphans scans for submissions stuck in RUNNING with no live
// owner and restarts their loop. It probes ownership by attempting and
// immediately releasing the lease: a window exists between the release and
// the restarted loop's own TryLock where a second recovery attempt (or the
// original, still-alive owner) could race in. This mirrors a known gap in
// the source design and is left unresolved here rather than papered over.
func (ctl *Controller) RecoverOrphans(ctx context.Context) error {
	ids, err := ctl.submissions.FindIDsByStatus(ctx, registry.StatusRunning)
	if err != nil {
		return fmt.Errorf("find running submissions: %w", err)
	}

	for _, id := range ids {
		lease, err := ctl.leases.TryLock(ctx, id, ctl.cfg.LeaseTTL)
		if err != nil {
			if wferrors.Is(err, wferrors.KindLeaseUnavailable) {
				continue
			}
			ctl.log.Error("orphan probe failed", "submission_id", id, "error", err)
			continue
		}
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			ctl.log.Error("orphan probe release failed", "submission_id", id, "error", releaseErr)
		}

		ctl.metrics.OrphanRecoveries.Add(1)
		go func(submissionID string) {
			if err := ctl.RunSubmission(context.Background(), submissionID); err != nil {
				ctl.log.Error("orphan submission run failed", "submission_id", submissionID, "error", err)
			}
		}(id)
	}
	return nil
}
