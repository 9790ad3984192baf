package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docreview/internal/ledger"
	"github.com/dgallion1/docreview/internal/pageindex"
	"github.com/dgallion1/docreview/internal/reconcile"
	"github.com/dgallion1/docreview/internal/storage"
)

// Worker reconciles one job at a time.
type Worker struct {
	store  storage.Store
	engine *reconcile.Engine
	ledger *ledger.Ledger
	locks  *executionLocks
	log    *slog.Logger
}

// NewWorker builds a worker. The ledger may be nil, in which case runs are not
// recorded.
func NewWorker(store storage.Store, l *ledger.Ledger, log *slog.Logger) *Worker {
	return newWorker(store, l, newExecutionLocks(), log)
}

func newWorker(store storage.Store, l *ledger.Ledger, locks *executionLocks, log *slog.Logger) *Worker {
	return &Worker{
		store:  store,
		engine: reconcile.NewEngine(store, log),
		ledger: l,
		locks:  locks,
		log:    log,
	}
}

// Process runs the reconciliation of job to a final status.
func (w *Worker) Process(ctx context.Context, job *Job) {
	session := job.Session()
	log := w.log.With("job_id", job.ID, "execution_id", job.ExecutionID)

	unlock := w.locks.lock(job.ExecutionID)
	defer unlock()

	if locker, ok := storage.LockerFor(w.store); ok {
		job.SetStatus(StatusReconciling, "locking")
		release, err := locker.LockExecution(ctx, job.ExecutionID)
		if err != nil {
			w.fail(ctx, log, job, "locking", fmt.Errorf("lock execution: %w", err))
			return
		}
		defer func() {
			if err := release(); err != nil {
				log.Warn("release execution lock", "error", err)
			}
		}()
	}

	job.SetStatus(StatusReconciling, "indexing")
	w.record(ctx, log, job)

	pages := pageindex.BuildPageIndex(session.Inventory, log)
	arts, err := pageindex.LoadArtifactIndex(ctx, w.store, job.ExecutionID, log)
	if err != nil {
		w.fail(ctx, log, job, "indexing", err)
		return
	}
	log.Info("indexed execution", "declared_fields", len(pages), "artifacts", arts.Len())

	job.SetStatus(StatusReconciling, "applying")
	res, err := w.engine.Apply(ctx, session.Batch, pages, arts)
	job.SetResult(res)
	if err != nil {
		w.fail(ctx, log, job, "applying", err)
		return
	}

	if len(res.Unresolved) > 0 {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
	w.record(ctx, log, job)
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, job *Job, phase string, err error) {
	log.Error("reconciliation failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
	w.record(ctx, log, job)
}

// record writes the job's current state to the ledger. Ledger failures are
// logged and do not change the job.
func (w *Worker) record(ctx context.Context, log *slog.Logger, job *Job) {
	if w.ledger == nil {
		return
	}
	snap := job.Snapshot()
	run := ledger.Run{
		ID:                snap.ID,
		ExecutionID:       snap.ExecutionID,
		Status:            string(snap.Status),
		FieldsConsidered:  snap.Progress.FieldsConsidered,
		ArtifactsModified: snap.Progress.ArtifactsModified,
		Unresolved:        snap.Progress.Unresolved,
		CreatedAt:         snap.CreatedAt,
		UpdatedAt:         snap.UpdatedAt,
	}
	if n := len(snap.Progress.Errors); n > 0 {
		run.Error = snap.Progress.Errors[n-1]
	}

	// The run outcome is recorded even when the job's context was cancelled.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.ledger.Record(recCtx, run); err != nil {
		log.Error("record run", "error", err)
	}
}
