package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/queueflow/queueflow/internal/models"
)

var ErrEntryAlreadyPosted = errors.New("queue entry already posted")

type QueueRepository interface {
	Create(ctx context.Context, q *models.PublishQueue) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.PublishQueue, error)
	ListByProfileID(ctx context.Context, profileID int64) ([]*models.PublishQueue, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.PublishQueue, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateScheduling(ctx context.Context, id int64, cfg models.SchedulingConfig) error
	UpdateStats(ctx context.Context, id int64, stats models.QueueStats) error
	ClaimDispatch(ctx context.Context, id int64) (bool, error)
	ReleaseDispatch(ctx context.Context, id int64) error

	ListEntries(ctx context.Context, queueID int64) ([]models.QueueEntry, error)
	AddEntry(ctx context.Context, queueID, itemID int64) (int64, error)
	RemoveEntry(ctx context.Context, queueID, entryID int64) error
	ReorderEntries(ctx context.Context, queueID int64, entries []models.QueueEntry) error
	MarkEntryPosted(ctx context.Context, entryID int64, postID, postURL string, postedAt time.Time) error
	IncrementEntryAttempts(ctx context.Context, entryID int64) (int, error)

	AppendError(ctx context.Context, qe *models.QueueError) error
	ListErrors(ctx context.Context, queueID int64, limit int) ([]*models.QueueError, error)
}

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

const queueColumns = `id, profile_id, name, status,
	sched_enabled, auto_post, start_at, end_at, post_interval, interval_hours,
	posting_hour, posting_minute, posting_tz,
	total_items, posted_items, last_posted_at, next_due_at,
	in_flight, created_at, updated_at`

func (r *queueRepository) Create(ctx context.Context, q *models.PublishQueue) (int64, error) {
	query := `INSERT INTO publish_queues(profile_id, name, status, post_interval)
			VALUES ($1, $2, $3, $4)
			RETURNING id`

	status := q.Status
	if status == "" {
		status = models.QueueStatusDraft
	}
	interval := q.Scheduling.Interval
	if interval == "" {
		interval = models.IntervalDaily
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, q.ProfileID, q.Name, status, interval).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *queueRepository) GetByID(ctx context.Context, id int64) (*models.PublishQueue, error) {
	query := `SELECT ` + queueColumns + ` FROM publish_queues WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	q, err := scanQueue(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return q, nil
}

func (r *queueRepository) ListByProfileID(ctx context.Context, profileID int64) ([]*models.PublishQueue, error) {
	query := `SELECT ` + queueColumns + ` FROM publish_queues WHERE profile_id = $1 ORDER BY created_at`
	return r.list(ctx, query, profileID)
}

// ListDue selects queues ready for auto-publish. Queues with a dispatch
// already in flight are excluded so a slow publish never gets a second
// concurrent one.
func (r *queueRepository) ListDue(ctx context.Context, now time.Time) ([]*models.PublishQueue, error) {
	query := `SELECT ` + queueColumns + ` FROM publish_queues
			WHERE sched_enabled = TRUE
			AND auto_post = TRUE
			AND status IN ($1, $2)
			AND next_due_at IS NOT NULL
			AND next_due_at <= $3
			AND in_flight = FALSE
			ORDER BY next_due_at`
	return r.list(ctx, query, models.QueueStatusScheduled, models.QueueStatusPosting, now)
}

func (r *queueRepository) list(ctx context.Context, query string, args ...any) ([]*models.PublishQueue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var queues []*models.PublishQueue
	for rows.Next() {
		q, err := scanQueue(rows.Scan)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		queues = append(queues, q)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return queues, nil
}

func (r *queueRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE publish_queues SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueRepository) UpdateScheduling(ctx context.Context, id int64, cfg models.SchedulingConfig) error {
	var hour, minute sql.NullInt64
	var tz sql.NullString
	if cfg.PostingTime != nil {
		hour = sql.NullInt64{Int64: int64(cfg.PostingTime.Hour), Valid: true}
		minute = sql.NullInt64{Int64: int64(cfg.PostingTime.Minute), Valid: true}
		tz = sql.NullString{String: cfg.PostingTime.Timezone, Valid: true}
	}

	var endAt sql.NullTime
	if cfg.EndAt != nil {
		endAt = sql.NullTime{Time: *cfg.EndAt, Valid: true}
	}

	query := `UPDATE publish_queues
			SET sched_enabled = $2,
				auto_post = $3,
				start_at = $4,
				end_at = $5,
				post_interval = $6,
				interval_hours = $7,
				posting_hour = $8,
				posting_minute = $9,
				posting_tz = $10,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id,
		cfg.Enabled, cfg.AutoPost, cfg.StartAt, endAt, cfg.Interval, cfg.IntervalHours, hour, minute, tz)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueRepository) UpdateStats(ctx context.Context, id int64, stats models.QueueStats) error {
	var lastPostedAt, nextDueAt sql.NullTime
	if stats.LastPostedAt != nil {
		lastPostedAt = sql.NullTime{Time: *stats.LastPostedAt, Valid: true}
	}
	if stats.NextDueAt != nil {
		nextDueAt = sql.NullTime{Time: *stats.NextDueAt, Valid: true}
	}

	query := `UPDATE publish_queues
			SET total_items = $2,
				posted_items = $3,
				last_posted_at = $4,
				next_due_at = $5,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, stats.TotalItems, stats.PostedItems, lastPostedAt, nextDueAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ClaimDispatch atomically takes the per-queue in-flight marker. A
// false return means another dispatch already holds it.
func (r *queueRepository) ClaimDispatch(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE publish_queues
			SET in_flight = TRUE, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND in_flight = FALSE`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *queueRepository) ReleaseDispatch(ctx context.Context, id int64) error {
	query := `UPDATE publish_queues SET in_flight = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueRepository) ListEntries(ctx context.Context, queueID int64) ([]models.QueueEntry, error) {
	query := `SELECT id, queue_id, item_id, position, posted, posted_at,
			external_post_id, external_post_url, attempts, created_at
			FROM queue_entries WHERE queue_id = $1 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, queueID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var postedAt sql.NullTime
		err := rows.Scan(&e.ID, &e.QueueID, &e.ItemID, &e.Position, &e.Posted, &postedAt,
			&e.ExternalPostID, &e.ExternalPostURL, &e.Attempts, &e.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if postedAt.Valid {
			e.PostedAt = &postedAt.Time
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return entries, nil
}

func (r *queueRepository) AddEntry(ctx context.Context, queueID, itemID int64) (int64, error) {
	query := `INSERT INTO queue_entries(queue_id, item_id, position)
			SELECT $1, $2, COALESCE(MAX(position) + 1, 0) FROM queue_entries WHERE queue_id = $1
			RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, queueID, itemID).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

// RemoveEntry deletes one entry and renumbers the remainder so
// positions stay a contiguous 0..n-1 sequence.
func (r *queueRepository) RemoveEntry(ctx context.Context, queueID, entryID int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = $1 AND queue_id = $2`, entryID, queueID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	renumber := `UPDATE queue_entries qe
			SET position = ranked.new_position
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY position) - 1 AS new_position
				FROM queue_entries WHERE queue_id = $1
			) ranked
			WHERE qe.id = ranked.id`
	_, err = tx.ExecContext(ctx, renumber, queueID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueRepository) ReorderEntries(ctx context.Context, queueID int64, entries []models.QueueEntry) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query := `UPDATE queue_entries SET position = $3 WHERE id = $1 AND queue_id = $2`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, e.ID, queueID, e.Position); err != nil {
			slog.Info(err.Error())
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkEntryPosted performs the one-way unposted -> posted transition.
// A second attempt on the same entry fails with ErrEntryAlreadyPosted.
func (r *queueRepository) MarkEntryPosted(ctx context.Context, entryID int64, postID, postURL string, postedAt time.Time) error {
	query := `UPDATE queue_entries
			SET posted = TRUE, posted_at = $2, external_post_id = $3, external_post_url = $4
			WHERE id = $1 AND posted = FALSE`

	result, err := r.db.ExecContext(ctx, query, entryID, postedAt, postID, postURL)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrEntryAlreadyPosted
	}
	return nil
}

func (r *queueRepository) IncrementEntryAttempts(ctx context.Context, entryID int64) (int, error) {
	query := `UPDATE queue_entries SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, entryID).Scan(&attempts)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return attempts, nil
}

func (r *queueRepository) AppendError(ctx context.Context, qe *models.QueueError) error {
	query := `INSERT INTO queue_errors(queue_id, entry_id, platform, kind, message)
			VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, qe.QueueID, qe.EntryID, qe.Platform, qe.Kind, qe.Message)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueRepository) ListErrors(ctx context.Context, queueID int64, limit int) ([]*models.QueueError, error) {
	query := `SELECT id, queue_id, entry_id, platform, kind, message, created_at
			FROM queue_errors WHERE queue_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, queueID, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var errs []*models.QueueError
	for rows.Next() {
		var qe models.QueueError
		err := rows.Scan(&qe.ID, &qe.QueueID, &qe.EntryID, &qe.Platform, &qe.Kind, &qe.Message, &qe.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		errs = append(errs, &qe)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return errs, nil
}

func scanQueue(scan func(dest ...any) error) (*models.PublishQueue, error) {
	var q models.PublishQueue
	var endAt, lastPostedAt, nextDueAt sql.NullTime
	var hour, minute sql.NullInt64
	var tz sql.NullString

	err := scan(&q.ID, &q.ProfileID, &q.Name, &q.Status,
		&q.Scheduling.Enabled, &q.Scheduling.AutoPost, &q.Scheduling.StartAt, &endAt,
		&q.Scheduling.Interval, &q.Scheduling.IntervalHours, &hour, &minute, &tz,
		&q.Stats.TotalItems, &q.Stats.PostedItems, &lastPostedAt, &nextDueAt,
		&q.InFlight, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if endAt.Valid {
		q.Scheduling.EndAt = &endAt.Time
	}
	if lastPostedAt.Valid {
		q.Stats.LastPostedAt = &lastPostedAt.Time
	}
	if nextDueAt.Valid {
		q.Stats.NextDueAt = &nextDueAt.Time
	}
	if hour.Valid && minute.Valid {
		q.Scheduling.PostingTime = &models.ClockTime{
			Hour:     int(hour.Int64),
			Minute:   int(minute.Int64),
			Timezone: tz.String,
		}
	}
	return &q, nil
}
