package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

// Run processes queued documents until ctx is cancelled. Documents a previous run left in extracting
// are failed first, then a sweep periodically re-queues pending documents whose job was dropped.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.RecoverInterrupted(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	for range max(o.cfg.Workers, 1) {
		g.Go(func() error {
			o.work(ctx)
			return nil
		})
	}

	g.Go(func() error {
		o.sweep(ctx)
		return nil
	})

	o.log.Info("pipeline started", "workers", o.cfg.Workers, "sweep_interval", o.cfg.SweepInterval)

	return g.Wait()
}

// RecoverInterrupted fails every document stuck in extracting. Only call it while no worker runs.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) error {
	ids, err := o.repo.ListByStatus(ctx, document.StatusExtracting, 0)
	if err != nil {
		return fmt.Errorf("list interrupted documents: %w", err)
	}

	for _, id := range ids {
		unlock := o.locks.Lock(id)
		err := o.fail(ctx, id, errors.New(reasonInterrupted))
		unlock()

		if err != nil && !errors.Is(err, document.ErrConflict) {
			return err
		}
	}

	if len(ids) > 0 {
		o.log.Warn("recovered interrupted documents", "count", len(ids))
	}

	return nil
}

func (o *Orchestrator) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.jobs:
			err := o.Process(ctx, id)

			switch {
			case err == nil:
			case errors.Is(err, document.ErrConflict), errors.Is(err, document.ErrNotFound):
				o.log.Debug("skipping queued document", "document_id", id, "reason", err)
			default:
				o.log.Error("failed to process document", "document_id", id, "error", err)
			}
		}
	}
}

func (o *Orchestrator) sweep(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		ids, err := o.repo.ListByStatus(ctx, document.StatusPending, o.cfg.QueueSize)
		if err != nil && ctx.Err() == nil {
			o.log.Error("failed to list pending documents", "error", err)
		}

		for _, id := range ids {
			o.enqueue(id)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// enqueue never blocks. A full queue drops the id and the next sweep picks the document up again.
func (o *Orchestrator) enqueue(id uuid.UUID) {
	select {
	case o.jobs <- id:
	default:
		o.log.Debug("queue full, deferring document to next sweep", "document_id", id)
	}
}
