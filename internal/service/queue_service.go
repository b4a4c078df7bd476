package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/schedule"
	"github.com/queueflow/queueflow/internal/transfer"
)

var ErrQueueNotFound = errors.New("queue not found")

type QueueService interface {
	Create(ctx context.Context, profileID int64, name string) (*models.PublishQueue, error)
	Get(ctx context.Context, id int64) (*models.PublishQueue, error)
	ListByProfile(ctx context.Context, profileID int64) ([]*models.PublishQueue, error)
	AddItem(ctx context.Context, queueID, itemID int64) (int64, error)
	RemoveItem(ctx context.Context, queueID, entryID int64) error
	Reorder(ctx context.Context, queueID int64, entryIDs []int64) error
	Entries(ctx context.Context, queueID int64) ([]models.QueueEntry, error)
	UpdateScheduling(ctx context.Context, queueID int64, input *transfer.SchedulingInput) error
	Pause(ctx context.Context, queueID int64) error
	Resume(ctx context.Context, queueID int64) error
	Status(ctx context.Context, queueID int64) (*transfer.QueueStatusResponse, error)
	Errors(ctx context.Context, queueID int64, limit int) ([]*models.QueueError, error)
}

type queueService struct {
	qr repository.QueueRepository
	cr repository.ContentItemRepository
}

func NewQueueService(qr repository.QueueRepository, cr repository.ContentItemRepository) QueueService {
	return &queueService{qr: qr, cr: cr}
}

func (s *queueService) Create(ctx context.Context, profileID int64, name string) (*models.PublishQueue, error) {
	if name == "" {
		err := errors.New("queue name is required")
		slog.Info(err.Error())
		return nil, err
	}

	q := &models.PublishQueue{
		ProfileID: profileID,
		Name:      name,
		Status:    models.QueueStatusDraft,
	}
	id, err := s.qr.Create(ctx, q)
	if err != nil {
		return nil, err
	}
	q.ID = id
	return q, nil
}

func (s *queueService) Get(ctx context.Context, id int64) (*models.PublishQueue, error) {
	q, err := s.qr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQueueNotFound
	}
	return q, nil
}

func (s *queueService) ListByProfile(ctx context.Context, profileID int64) ([]*models.PublishQueue, error) {
	return s.qr.ListByProfileID(ctx, profileID)
}

// AddItem appends a content item at the tail of the queue and refreshes
// the stored stats. A completed queue gains new work and returns to
// scheduled so the engine picks it up again.
func (s *queueService) AddItem(ctx context.Context, queueID, itemID int64) (int64, error) {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return 0, err
	}

	item, err := s.cr.GetByID(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		err := fmt.Errorf("content item %d not found", itemID)
		slog.Info(err.Error())
		return 0, err
	}
	if item.ProfileID != q.ProfileID {
		err := errors.New("content item belongs to a different profile")
		slog.Info(err.Error())
		return 0, err
	}

	entryID, err := s.qr.AddEntry(ctx, queueID, itemID)
	if err != nil {
		return 0, err
	}

	entries, err := s.qr.ListEntries(ctx, queueID)
	if err != nil {
		return 0, err
	}
	stats := schedule.RecomputeStats(entries, q.Stats)

	if q.Status == models.QueueStatusCompleted {
		// Completion nulled the due time; a reopened queue needs a fresh
		// one or ListDue never selects it again.
		stats.NextDueAt = schedule.ComputeNextDue(q.Scheduling, stats.LastPostedAt, time.Now())
		if err := s.qr.UpdateStatus(ctx, queueID, models.QueueStatusScheduled); err != nil {
			return 0, err
		}
	}
	return entryID, s.qr.UpdateStats(ctx, queueID, stats)
}

func (s *queueService) RemoveItem(ctx context.Context, queueID, entryID int64) error {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return err
	}
	if err := s.qr.RemoveEntry(ctx, queueID, entryID); err != nil {
		return err
	}
	return s.refreshStats(ctx, q)
}

// Reorder rewrites entry positions to follow the given order. Every
// entry of the queue must appear exactly once; posted entries keep
// their flags, only positions move.
func (s *queueService) Reorder(ctx context.Context, queueID int64, entryIDs []int64) error {
	entries, err := s.qr.ListEntries(ctx, queueID)
	if err != nil {
		return err
	}
	if len(entryIDs) != len(entries) {
		err := fmt.Errorf("reorder lists %d entries, queue has %d", len(entryIDs), len(entries))
		slog.Info(err.Error())
		return err
	}

	byID := make(map[int64]models.QueueEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	ordered := make([]models.QueueEntry, 0, len(entryIDs))
	for i, id := range entryIDs {
		e, ok := byID[id]
		if !ok {
			err := fmt.Errorf("entry %d is not in queue %d", id, queueID)
			slog.Info(err.Error())
			return err
		}
		delete(byID, id)
		e.Position = i
		ordered = append(ordered, e)
	}

	return s.qr.ReorderEntries(ctx, queueID, ordered)
}

func (s *queueService) Entries(ctx context.Context, queueID int64) ([]models.QueueEntry, error) {
	if _, err := s.Get(ctx, queueID); err != nil {
		return nil, err
	}
	return s.qr.ListEntries(ctx, queueID)
}

// UpdateScheduling replaces the queue's scheduling config and recomputes
// the next due time from it. Enabling scheduling moves a draft or failed
// queue to scheduled; disabling moves it back to draft.
func (s *queueService) UpdateScheduling(ctx context.Context, queueID int64, input *transfer.SchedulingInput) error {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return err
	}

	cfg := models.SchedulingConfig{
		Enabled:       input.Enabled,
		AutoPost:      input.AutoPost,
		StartAt:       input.StartAt,
		EndAt:         input.EndAt,
		Interval:      input.Interval,
		IntervalHours: input.IntervalHours,
		PostingTime:   input.PostingTime,
	}
	if cfg.Enabled {
		if cfg.StartAt.IsZero() {
			err := errors.New("start time is required to enable scheduling")
			slog.Info(err.Error())
			return err
		}
		if _, ok := schedule.IntervalDuration(cfg); !ok {
			err := fmt.Errorf("invalid interval %q", cfg.Interval)
			slog.Info(err.Error())
			return err
		}
	}

	if err := s.qr.UpdateScheduling(ctx, queueID, cfg); err != nil {
		return err
	}

	stats := q.Stats
	if cfg.Enabled {
		stats.NextDueAt = schedule.ComputeNextDue(cfg, stats.LastPostedAt, time.Now())
	} else {
		stats.NextDueAt = nil
	}
	if err := s.qr.UpdateStats(ctx, queueID, stats); err != nil {
		return err
	}

	switch {
	case cfg.Enabled && (q.Status == models.QueueStatusDraft || q.Status == models.QueueStatusFailed):
		return s.qr.UpdateStatus(ctx, queueID, models.QueueStatusScheduled)
	case !cfg.Enabled && q.Status == models.QueueStatusScheduled:
		return s.qr.UpdateStatus(ctx, queueID, models.QueueStatusDraft)
	}
	return nil
}

func (s *queueService) Pause(ctx context.Context, queueID int64) error {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return err
	}
	if q.Status != models.QueueStatusScheduled && q.Status != models.QueueStatusPosting {
		err := fmt.Errorf("cannot pause a %s queue", q.Status)
		slog.Info(err.Error())
		return err
	}
	return s.qr.UpdateStatus(ctx, queueID, models.QueueStatusPaused)
}

// Resume puts a paused queue back on schedule. The next due time is
// recomputed from now so a long pause does not release a backlog burst.
func (s *queueService) Resume(ctx context.Context, queueID int64) error {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return err
	}
	if q.Status != models.QueueStatusPaused {
		err := fmt.Errorf("cannot resume a %s queue", q.Status)
		slog.Info(err.Error())
		return err
	}

	stats := q.Stats
	stats.NextDueAt = schedule.ComputeNextDue(q.Scheduling, stats.LastPostedAt, time.Now())
	if err := s.qr.UpdateStats(ctx, queueID, stats); err != nil {
		return err
	}
	return s.qr.UpdateStatus(ctx, queueID, models.QueueStatusScheduled)
}

func (s *queueService) Status(ctx context.Context, queueID int64) (*transfer.QueueStatusResponse, error) {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return &transfer.QueueStatusResponse{
		ID:        q.ID,
		Status:    q.Status,
		Stats:     q.Stats,
		NextDueAt: q.Stats.NextDueAt,
	}, nil
}

func (s *queueService) Errors(ctx context.Context, queueID int64, limit int) ([]*models.QueueError, error) {
	if _, err := s.Get(ctx, queueID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.qr.ListErrors(ctx, queueID, limit)
}

func (s *queueService) refreshStats(ctx context.Context, q *models.PublishQueue) error {
	entries, err := s.qr.ListEntries(ctx, q.ID)
	if err != nil {
		return err
	}
	return s.qr.UpdateStats(ctx, q.ID, schedule.RecomputeStats(entries, q.Stats))
}
