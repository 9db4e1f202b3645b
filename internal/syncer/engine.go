package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"bookshelf/internal/bookcache"
	"bookshelf/internal/localstore"
	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// ErrNoUser is returned when Reconcile is called without a user id
var ErrNoUser = errors.New("syncer: user id required")

// Engine reconciles the local library with the remote library store.
//
// Passes are serialized: a Reconcile arriving while another is running waits
// for it. Remote failures never abort a pass; the affected queue entries stay
// queued for the next one.
type Engine struct {
	local   *localstore.Store
	cache   *bookcache.Cache
	remote  storage.Storage
	logger  *zap.Logger
	metrics *Metrics

	gate       *semaphore.Weighted
	inProgress atomic.Int32
}

// NewEngine creates an engine. cache and metrics may be nil.
func NewEngine(local *localstore.Store, cache *bookcache.Cache, remote storage.Storage, logger *zap.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		local:   local,
		cache:   cache,
		remote:  remote,
		logger:  logger,
		metrics: metrics,
		gate:    semaphore.NewWeighted(1),
	}
}

// InProgress returns the number of passes currently running: 0 or 1
func (e *Engine) InProgress() int {
	return int(e.inProgress.Load())
}

// Wait blocks until no pass is running or ctx ends
func (e *Engine) Wait(ctx context.Context) error {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	e.gate.Release(1)
	return nil
}

// Report summarizes one reconciliation pass
type Report struct {
	UserID           string
	DeletionsDrained int
	UploadsDrained   int
	UploadsDropped   int
	Pulled           []string
	Removed          []string
	ProgressPulled   int
	ProgressPushed   int
	Failures         int
	Duration         time.Duration
}

// LibraryChanged reports whether the pass changed what the local library shows
func (r Report) LibraryChanged() bool {
	return len(r.Pulled) > 0 || len(r.Removed) > 0 || r.ProgressPulled > 0
}

// Reconcile runs one full pass for userID. The returned error is non-nil only
// when userID is empty or ctx ends while waiting for a running pass; remote
// failures are counted in Report.Failures.
func (e *Engine) Reconcile(ctx context.Context, userID string) (Report, error) {
	if userID == "" {
		return Report{}, ErrNoUser
	}
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return Report{}, fmt.Errorf("wait for running sync: %w", err)
	}
	defer e.gate.Release(1)

	e.inProgress.Add(1)
	defer e.inProgress.Add(-1)

	start := time.Now()
	report := Report{UserID: userID}
	logger := e.logger.With(zap.String("user_id", userID))
	logger.Debug("Reconciliation started")

	e.drainDeletions(ctx, userID, &report)
	e.drainUploads(ctx, userID, &report)

	// Re-read after the drains: pending sets are their own durable records
	snapshot := e.local.Load()
	var plan mergePlan
	e.planMembership(ctx, userID, snapshot, &plan, &report)
	e.mergeProgress(ctx, userID, snapshot, &plan, &report)

	var final localstore.Document
	err := e.local.Update(func(doc *localstore.Document) error {
		plan.apply(doc, &report)
		final = doc.Clone()
		return nil
	})
	if err != nil {
		report.Failures++
		logger.Error("Failed to persist reconciled state", zap.Error(err))
	} else {
		e.metrics.setPending(len(final.PendingDeletions), len(final.PendingUploads))
	}

	report.Duration = time.Since(start)
	e.metrics.observePass(report)

	logger.Info("Reconciliation finished",
		zap.Int("deletions_drained", report.DeletionsDrained),
		zap.Int("uploads_drained", report.UploadsDrained),
		zap.Int("pulled", len(report.Pulled)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("progress_pulled", report.ProgressPulled),
		zap.Int("progress_pushed", report.ProgressPushed),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (e *Engine) drainDeletions(ctx context.Context, userID string, report *Report) {
	for _, id := range e.local.PendingDeletions() {
		if err := e.remote.DeleteUserBook(ctx, userID, id); err != nil {
			e.remoteFailure(report, "delete_book", id, err)
			continue
		}
		if err := e.local.RemovePendingDeletion(id); err != nil {
			e.logger.Error("Failed to dequeue pending deletion", zap.String("book_id", id), zap.Error(err))
			continue
		}
		report.DeletionsDrained++
	}
}

func (e *Engine) drainUploads(ctx context.Context, userID string, report *Report) {
	for _, id := range e.local.PendingUploads() {
		entry, ok := e.local.Entry(id)
		if !ok {
			if err := e.local.RemovePendingUpload(id); err != nil {
				e.logger.Error("Failed to drop orphaned pending upload", zap.String("book_id", id), zap.Error(err))
				continue
			}
			report.UploadsDropped++
			continue
		}

		book := models.RemoteBookFrom(e.hydrateCover(ctx, entry))
		if err := e.remote.UpsertUserBook(ctx, userID, book); err != nil {
			e.remoteFailure(report, "upsert_book", id, err)
			continue
		}
		if err := e.local.RemovePendingUpload(id); err != nil {
			e.logger.Error("Failed to dequeue pending upload", zap.String("book_id", id), zap.Error(err))
			continue
		}
		report.UploadsDrained++
	}
}

// hydrateCover restores a stripped cover from the book cache before the
// entry goes over the wire
func (e *Engine) hydrateCover(ctx context.Context, entry models.Entry) models.Entry {
	if entry.Info().Cover != "" || e.cache == nil {
		return entry
	}
	if cover := e.cache.Cover(ctx, entry.Info().ID); cover != "" {
		return models.WithCover(entry, cover)
	}
	return entry
}

// planMembership decides which local entries to drop (gone remotely, not
// pending upload) and which remote rows to materialize locally
func (e *Engine) planMembership(ctx context.Context, userID string, snapshot localstore.Document, plan *mergePlan, report *Report) {
	remoteBooks, err := e.remote.ListUserBooks(ctx, userID)
	if err != nil {
		// Without the remote set there is no ground truth; removing anything
		// now could delete the whole library
		e.remoteFailure(report, "list_books", "", err)
		return
	}

	remoteIDs := make(map[string]bool, len(remoteBooks))
	for _, b := range remoteBooks {
		remoteIDs[b.BookID] = true
	}
	pendingUploads := idSet(snapshot.PendingUploads)
	pendingDeletions := idSet(snapshot.PendingDeletions)

	for _, id := range snapshot.MyBooks {
		if !remoteIDs[id] && !pendingUploads[id] {
			plan.remove = append(plan.remove, id)
		}
	}

	for _, b := range remoteBooks {
		if snapshot.HasBook(b.BookID) || pendingDeletions[b.BookID] {
			continue
		}
		entry := b.Entry()
		if models.IsInlineImage(b.Cover) && e.cache != nil {
			e.cache.PutCover(ctx, b.BookID, b.Cover)
			entry = models.WithCover(entry, "")
		}
		plan.add = append(plan.add, entry)
	}
}

// mergeProgress applies last-write-wins per book in both directions
func (e *Engine) mergeProgress(ctx context.Context, userID string, snapshot localstore.Document, plan *mergePlan, report *Report) {
	remoteProgress, err := e.remote.ListProgress(ctx, userID)
	if err != nil {
		// Pushing everything blind would be safe but wasteful; wait for the
		// next pass
		e.remoteFailure(report, "list_progress", "", err)
		return
	}

	remoteByID := make(map[string]models.ReadingProgress, len(remoteProgress))
	for _, rp := range remoteProgress {
		remoteByID[rp.BookID] = rp
		lp, ok := snapshot.ReadingProgress[rp.BookID]
		if !ok || rp.NewerThan(lp) {
			plan.progress = append(plan.progress, rp)
		}
	}

	ids := make([]string, 0, len(snapshot.ReadingProgress))
	for id := range snapshot.ReadingProgress {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		lp := snapshot.ReadingProgress[id]
		rp, ok := remoteByID[id]
		if ok && !lp.NewerThan(rp) {
			continue
		}
		if err := e.remote.UpsertProgress(ctx, userID, lp); err != nil {
			e.remoteFailure(report, "upsert_progress", id, err)
			continue
		}
		report.ProgressPushed++
	}
}

func (e *Engine) remoteFailure(report *Report, op, bookID string, err error) {
	report.Failures++
	e.metrics.remoteFailure(op)
	e.logger.Warn("Remote call failed, will retry on next sync",
		zap.String("op", op),
		zap.String("book_id", bookID),
		zap.Error(err),
	)
}

// mergePlan is the outcome of a pass, applied to the document in one write
type mergePlan struct {
	remove   []string
	add      []models.Entry
	progress []models.ReadingProgress
}

// apply re-checks each decision against the current document, since UI
// mutations may have landed while the pass was talking to the remote store
func (p mergePlan) apply(doc *localstore.Document, report *Report) {
	pendingUploads := idSet(doc.PendingUploads)
	pendingDeletions := idSet(doc.PendingDeletions)

	for _, id := range p.remove {
		if pendingUploads[id] || !doc.HasBook(id) {
			continue
		}
		doc.RemoveEntry(id)
		report.Removed = append(report.Removed, id)
	}

	for _, entry := range p.add {
		id := entry.Info().ID
		if pendingDeletions[id] || doc.HasBook(id) {
			continue
		}
		doc.PutEntry(entry)
		report.Pulled = append(report.Pulled, id)
	}

	for _, rp := range p.progress {
		if lp, ok := doc.ReadingProgress[rp.BookID]; ok && !rp.NewerThan(lp) {
			continue
		}
		doc.ReadingProgress[rp.BookID] = rp
		report.ProgressPulled++
	}
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
