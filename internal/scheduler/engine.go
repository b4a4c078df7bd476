package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	config "github.com/queueflow/queueflow/configs"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/orchestrator"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/schedule"
)

// Publisher runs the multi-platform publish for one content item.
type Publisher interface {
	Publish(ctx context.Context, item *models.ContentItem, target orchestrator.Target) orchestrator.Outcome
}

// Dispatcher hands a due queue to whatever executes it. The in-process
// dispatcher calls the engine directly; the asynq dispatcher enqueues a
// task for a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, queueID int64) error
}

// Engine drives auto-posting. On every tick it finds due queues and
// dispatches each one; ProcessQueue publishes the head entry of one
// queue and advances its schedule.
type Engine struct {
	cfg  config.Config
	qr   repository.QueueRepository
	cr   repository.ContentItemRepository
	pub  Publisher
	disp Dispatcher

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(cfg config.Config, qr repository.QueueRepository, cr repository.ContentItemRepository, pub Publisher) *Engine {
	e := &Engine{cfg: cfg, qr: qr, cr: cr, pub: pub}
	e.disp = directDispatcher{e}
	return e
}

// SetDispatcher replaces the default in-process dispatcher.
func (e *Engine) SetDispatcher(d Dispatcher) {
	e.disp = d
}

type directDispatcher struct{ e *Engine }

func (d directDispatcher) Dispatch(ctx context.Context, queueID int64) error {
	return d.e.ProcessQueue(ctx, queueID)
}

// Start begins periodic ticking. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", e.cfg.SchedulerInterval)
	if _, err := c.AddFunc(spec, func() {
		if err := e.Tick(context.Background()); err != nil {
			slog.Info(err.Error())
		}
	}); err != nil {
		return err
	}
	c.Start()

	e.cron = c
	e.running = true
	return nil
}

// Stop halts ticking and waits for a running tick to finish. Dispatched
// work already handed to an external dispatcher is not waited on.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	<-e.cron.Stop().Done()
	e.cron = nil
	e.running = false
}

// Tick dispatches every queue whose next due time has arrived. One
// queue's dispatch failure does not stop the others.
func (e *Engine) Tick(ctx context.Context) error {
	due, err := e.qr.ListDue(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	for _, q := range due {
		if err := e.disp.Dispatch(ctx, q.ID); err != nil {
			slog.Info(fmt.Sprintf("dispatching queue %d: %s", q.ID, err.Error()))
		}
	}
	return nil
}

// ProcessQueue publishes the first unposted entry of the queue and
// updates its schedule. The per-queue claim makes the call safe against
// concurrent dispatches of the same queue: the loser returns without
// publishing.
func (e *Engine) ProcessQueue(ctx context.Context, queueID int64) error {
	claimed, err := e.qr.ClaimDispatch(ctx, queueID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	defer func() {
		if err := e.qr.ReleaseDispatch(context.WithoutCancel(ctx), queueID); err != nil {
			slog.Info(err.Error())
		}
	}()

	q, err := e.qr.GetByID(ctx, queueID)
	if err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("queue %d not found", queueID)
	}
	if q.Status != models.QueueStatusScheduled && q.Status != models.QueueStatusPosting {
		return nil
	}

	entries, err := e.qr.ListEntries(ctx, queueID)
	if err != nil {
		return err
	}

	entry, ok := schedule.NextUnposted(entries)
	if !ok {
		if err := e.qr.UpdateStatus(ctx, queueID, models.QueueStatusCompleted); err != nil {
			return err
		}
		stats := schedule.RecomputeStats(entries, q.Stats)
		stats.NextDueAt = nil
		return e.qr.UpdateStats(ctx, queueID, stats)
	}

	item, err := e.cr.GetByID(ctx, entry.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("content item %d not found for queue %d", entry.ItemID, queueID)
	}

	if err := e.qr.UpdateStatus(ctx, queueID, models.QueueStatusPosting); err != nil {
		return err
	}

	outcome := e.pub.Publish(ctx, item, orchestrator.AllConfigured())
	for _, pe := range outcome.Errors {
		qe := &models.QueueError{
			QueueID:  queueID,
			EntryID:  entry.ID,
			Platform: pe.Platform,
			Kind:     string(pe.Kind),
			Message:  pe.Message,
		}
		if err := e.qr.AppendError(ctx, qe); err != nil {
			slog.Info(err.Error())
		}
	}

	posted := outcome.AnySuccess()
	if e.cfg.RequireAllPlatforms {
		posted = outcome.AllSuccess()
	}
	if !posted {
		return e.handleFailure(ctx, q, entry, outcome)
	}

	now := time.Now()
	first, _ := outcome.FirstSuccess()
	if err := e.qr.MarkEntryPosted(ctx, entry.ID, first.ExternalPostID, first.ExternalPostURL, now); err != nil {
		return err
	}

	entries, err = e.qr.ListEntries(ctx, queueID)
	if err != nil {
		return err
	}
	stats := schedule.RecomputeStats(entries, q.Stats)
	stats.LastPostedAt = &now
	stats.NextDueAt = schedule.ComputeNextDue(q.Scheduling, &now, now)
	if err := e.qr.UpdateStats(ctx, queueID, stats); err != nil {
		return err
	}

	if _, remaining := schedule.NextUnposted(entries); !remaining {
		return e.qr.UpdateStatus(ctx, queueID, models.QueueStatusCompleted)
	}
	return e.qr.UpdateStatus(ctx, queueID, models.QueueStatusScheduled)
}

// handleFailure decides between retry and giving up. Retryable failures
// leave the due time alone so the next tick tries again, up to the
// attempt cap. Anything else parks the queue as failed until an
// operator intervenes.
func (e *Engine) handleFailure(ctx context.Context, q *models.PublishQueue, entry models.QueueEntry, outcome orchestrator.Outcome) error {
	attempts, err := e.qr.IncrementEntryAttempts(ctx, entry.ID)
	if err != nil {
		return err
	}

	if outcome.RetryEligible() && attempts < e.cfg.MaxPublishAttempts {
		return e.qr.UpdateStatus(ctx, q.ID, models.QueueStatusScheduled)
	}

	stats := q.Stats
	stats.NextDueAt = nil
	if err := e.qr.UpdateStats(ctx, q.ID, stats); err != nil {
		return err
	}
	return e.qr.UpdateStatus(ctx, q.ID, models.QueueStatusFailed)
}
