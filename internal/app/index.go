package app

import (
	"context"
	"fmt"

	"bookrec/internal/util"
	"bookrec/pkg/queue"
)

// SearchTitles exposes paginated title lookup from the corpus.
func (a *App) SearchTitles(q string, limit, offset int) ([]string, int, error) {
	return a.corpus.SearchTitles(q, limit, offset)
}

// SyncCatalog mirrors every corpus record into the relational books table
// so read-book rows have something to reference.
func (a *App) SyncCatalog() error {
	for _, record := range a.corpus.All() {
		if err := a.store.SaveBookRef(record); err != nil {
			return fmt.Errorf("save book ref %q: %w", record.Title, err)
		}
	}
	return nil
}

// RebuildIndex embeds the corpus off to the side and publishes the result
// atomically. Vectors cached in the store are reused; freshly computed ones
// are written back for the next restart.
func (a *App) RebuildIndex(ctx context.Context) error {
	logger := util.LoggerFromContext(ctx)

	cached, err := a.store.ListBookEmbeddings()
	if err != nil {
		return fmt.Errorf("load cached embeddings: %w", err)
	}
	records := a.corpus.All()
	for i := range records {
		if vec, ok := cached[records[i].ID]; ok {
			records[i].Embedding = vec
		}
	}

	snap, err := a.index.Rebuild(ctx, records, a.embedder)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	logger.Info("embedding index published", "version", snap.Version(), "books", snap.Len(), "dim", snap.Dimension())

	for i := range records {
		if len(records[i].Embedding) > 0 {
			continue
		}
		if vec, ok := snap.Vector(records[i].ID); ok {
			records[i].Embedding = vec
			if err := a.store.SaveBookRef(records[i]); err != nil {
				logger.Warn("cache embedding failed", "title", records[i].Title, "err", err)
			}
		}
	}
	return nil
}

// EnqueueReindex schedules an asynchronous index rebuild.
func (a *App) EnqueueReindex(ctx context.Context, reason string) (queue.JobStatus, error) {
	if a.queue == nil {
		return queue.JobStatus{}, fmt.Errorf("rebuild queue not configured")
	}
	return a.queue.Enqueue(ctx, reason)
}

// ReindexJob returns the recorded status of a rebuild job.
func (a *App) ReindexJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error) {
	if a.queue == nil {
		return queue.JobStatus{}, false, fmt.Errorf("rebuild queue not configured")
	}
	return a.queue.GetJob(ctx, jobID)
}

// StartIndexWorkers consumes rebuild jobs until ctx is cancelled. A single
// consumer keeps rebuilds from overlapping.
func (a *App) StartIndexWorkers(ctx context.Context) {
	if a.queue == nil {
		return
	}
	a.queue.Start(ctx, 1, func(jobCtx context.Context, job queue.JobStatus) error {
		util.LoggerFromContext(jobCtx).Info("rebuild job received", "job", job.ID, "reason", job.Reason)
		return a.RebuildIndex(jobCtx)
	})
}
