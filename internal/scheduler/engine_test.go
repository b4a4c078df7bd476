package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/queueflow/queueflow/configs"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/orchestrator"
	"github.com/queueflow/queueflow/internal/publisher"
)

// memQueueRepo is an in-memory QueueRepository backed by a mutex so
// concurrent dispatch tests observe the same claim semantics the SQL
// implementation provides.
type memQueueRepo struct {
	mu      sync.Mutex
	queues  map[int64]*models.PublishQueue
	entries map[int64][]models.QueueEntry
	errors  []*models.QueueError
	nextID  int64
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{
		queues:  make(map[int64]*models.PublishQueue),
		entries: make(map[int64][]models.QueueEntry),
		nextID:  1,
	}
}

func (r *memQueueRepo) Create(ctx context.Context, q *models.PublishQueue) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q.ID = r.nextID
	r.nextID++
	cp := *q
	r.queues[q.ID] = &cp
	return q.ID, nil
}

func (r *memQueueRepo) GetByID(ctx context.Context, id int64) (*models.PublishQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (r *memQueueRepo) ListByProfileID(ctx context.Context, profileID int64) ([]*models.PublishQueue, error) {
	return nil, nil
}

func (r *memQueueRepo) ListDue(ctx context.Context, now time.Time) ([]*models.PublishQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.PublishQueue
	for _, q := range r.queues {
		if !q.Scheduling.Enabled || !q.Scheduling.AutoPost || q.InFlight {
			continue
		}
		if q.Status != models.QueueStatusScheduled && q.Status != models.QueueStatusPosting {
			continue
		}
		if q.Stats.NextDueAt == nil || q.Stats.NextDueAt.After(now) {
			continue
		}
		cp := *q
		due = append(due, &cp)
	}
	return due, nil
}

func (r *memQueueRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[id].Status = status
	return nil
}

func (r *memQueueRepo) UpdateScheduling(ctx context.Context, id int64, cfg models.SchedulingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[id].Scheduling = cfg
	return nil
}

func (r *memQueueRepo) UpdateStats(ctx context.Context, id int64, stats models.QueueStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[id].Stats = stats
	return nil
}

func (r *memQueueRepo) ClaimDispatch(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	if !ok || q.InFlight {
		return false, nil
	}
	q.InFlight = true
	return true, nil
}

func (r *memQueueRepo) ReleaseDispatch(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[id].InFlight = false
	return nil
}

func (r *memQueueRepo) ListEntries(ctx context.Context, queueID int64) ([]models.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.QueueEntry, len(r.entries[queueID]))
	copy(out, r.entries[queueID])
	return out, nil
}

func (r *memQueueRepo) AddEntry(ctx context.Context, queueID, itemID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.entries[queueID] = append(r.entries[queueID], models.QueueEntry{
		ID:       id,
		QueueID:  queueID,
		ItemID:   itemID,
		Position: len(r.entries[queueID]),
	})
	return id, nil
}

func (r *memQueueRepo) RemoveEntry(ctx context.Context, queueID, entryID int64) error {
	return nil
}

func (r *memQueueRepo) ReorderEntries(ctx context.Context, queueID int64, entries []models.QueueEntry) error {
	return nil
}

func (r *memQueueRepo) MarkEntryPosted(ctx context.Context, entryID int64, postID, postURL string, postedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for qid, entries := range r.entries {
		for i, e := range entries {
			if e.ID != entryID {
				continue
			}
			if e.Posted {
				return nil
			}
			entries[i].Posted = true
			entries[i].PostedAt = &postedAt
			entries[i].ExternalPostID = postID
			entries[i].ExternalPostURL = postURL
			r.entries[qid] = entries
			return nil
		}
	}
	return nil
}

func (r *memQueueRepo) IncrementEntryAttempts(ctx context.Context, entryID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for qid, entries := range r.entries {
		for i, e := range entries {
			if e.ID == entryID {
				entries[i].Attempts++
				r.entries[qid] = entries
				return entries[i].Attempts, nil
			}
		}
	}
	return 0, nil
}

func (r *memQueueRepo) AppendError(ctx context.Context, qe *models.QueueError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, qe)
	return nil
}

func (r *memQueueRepo) ListErrors(ctx context.Context, queueID int64, limit int) ([]*models.QueueError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QueueError
	for _, e := range r.errors {
		if e.QueueID == queueID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memItemRepo struct {
	items map[int64]*models.ContentItem
}

func (r *memItemRepo) Create(ctx context.Context, item *models.ContentItem) (int64, error) {
	return 0, nil
}

func (r *memItemRepo) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return item, nil
}

func (r *memItemRepo) ListByProfileID(ctx context.Context, profileID int64) ([]*models.ContentItem, error) {
	return nil, nil
}

func (r *memItemRepo) Remove(ctx context.Context, id int64) error { return nil }

// scriptedPublisher returns queued outcomes in call order and counts
// calls.
type scriptedPublisher struct {
	mu       sync.Mutex
	outcomes []orchestrator.Outcome
	calls    int
}

func (p *scriptedPublisher) Publish(ctx context.Context, item *models.ContentItem, target orchestrator.Target) orchestrator.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.outcomes) == 0 {
		return orchestrator.Outcome{Results: []publisher.Result{{Platform: models.PlatformInstagram, Success: true, ExternalPostID: "p1"}}}
	}
	out := p.outcomes[0]
	p.outcomes = p.outcomes[1:]
	return out
}

func successOutcome(postID string) orchestrator.Outcome {
	return orchestrator.Outcome{Results: []publisher.Result{{
		Platform:        models.PlatformInstagram,
		Success:         true,
		ExternalPostID:  postID,
		ExternalPostURL: "https://instagram.com/p/" + postID,
	}}}
}

func failureOutcome(kind publisher.ErrorKind) orchestrator.Outcome {
	return orchestrator.Outcome{
		Results: []publisher.Result{{Platform: models.PlatformInstagram, ErrorKind: kind, Message: "boom"}},
		Errors:  []orchestrator.PlatformError{{Platform: models.PlatformInstagram, Kind: kind, Message: "boom"}},
	}
}

func testEngine(t *testing.T, pub Publisher) (*Engine, *memQueueRepo, *memItemRepo) {
	t.Helper()
	qr := newMemQueueRepo()
	ir := &memItemRepo{items: make(map[int64]*models.ContentItem)}
	cfg := config.Config{
		SchedulerInterval:   time.Minute,
		MaxPublishAttempts:  3,
		RequireAllPlatforms: false,
	}
	return New(cfg, qr, ir, pub), qr, ir
}

func seedQueue(t *testing.T, qr *memQueueRepo, ir *memItemRepo, itemCount int) int64 {
	t.Helper()
	ctx := context.Background()
	due := time.Now().Add(-time.Minute)
	queueID, err := qr.Create(ctx, &models.PublishQueue{
		ProfileID: 1,
		Name:      "daily drops",
		Status:    models.QueueStatusScheduled,
		Scheduling: models.SchedulingConfig{
			Enabled:  true,
			AutoPost: true,
			StartAt:  time.Now().Add(-24 * time.Hour),
			Interval: models.IntervalDaily,
		},
		Stats: models.QueueStats{NextDueAt: &due},
	})
	require.NoError(t, err)

	for i := 0; i < itemCount; i++ {
		itemID := int64(100 + i)
		ir.items[itemID] = &models.ContentItem{
			ID:        itemID,
			ProfileID: 1,
			Caption:   "post",
			MediaKind: models.MediaKindImage,
			FileURL:   "https://cdn.example.com/a.jpg",
			Platforms: []models.Platform{models.PlatformInstagram},
		}
		_, err := qr.AddEntry(ctx, queueID, itemID)
		require.NoError(t, err)
	}
	return queueID
}

func TestProcessQueuePostsHeadEntry(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{successOutcome("ig-1")}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 3)

	require.NoError(t, engine.ProcessQueue(context.Background(), queueID))

	entries, _ := qr.ListEntries(context.Background(), queueID)
	assert.True(t, entries[0].Posted)
	assert.Equal(t, "ig-1", entries[0].ExternalPostID)
	assert.False(t, entries[1].Posted)
	assert.False(t, entries[2].Posted)

	q, _ := qr.GetByID(context.Background(), queueID)
	assert.Equal(t, models.QueueStatusScheduled, q.Status)
	assert.Equal(t, 1, q.Stats.PostedItems)
	assert.Equal(t, 3, q.Stats.TotalItems)
	require.NotNil(t, q.Stats.NextDueAt)
	assert.True(t, q.Stats.NextDueAt.After(time.Now()))
	assert.False(t, q.InFlight)
}

func TestProcessQueueDrainsToCompleted(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{
		successOutcome("a"), successOutcome("b"), successOutcome("c"),
	}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.ProcessQueue(ctx, queueID))
	}

	q, _ := qr.GetByID(ctx, queueID)
	assert.Equal(t, models.QueueStatusCompleted, q.Status)
	assert.Equal(t, 3, q.Stats.PostedItems)
	assert.Equal(t, 3, pub.calls)

	entries, _ := qr.ListEntries(ctx, queueID)
	assert.Equal(t, "a", entries[0].ExternalPostID)
	assert.Equal(t, "b", entries[1].ExternalPostID)
	assert.Equal(t, "c", entries[2].ExternalPostID)
}

func TestProcessQueueRetryableFailureKeepsSchedule(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{failureOutcome(publisher.ErrTransport)}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 1)

	ctx := context.Background()
	require.NoError(t, engine.ProcessQueue(ctx, queueID))

	q, _ := qr.GetByID(ctx, queueID)
	assert.Equal(t, models.QueueStatusScheduled, q.Status)
	require.NotNil(t, q.Stats.NextDueAt)

	entries, _ := qr.ListEntries(ctx, queueID)
	assert.False(t, entries[0].Posted)
	assert.Equal(t, 1, entries[0].Attempts)

	errs, _ := qr.ListErrors(ctx, queueID, 10)
	require.Len(t, errs, 1)
	assert.Equal(t, string(publisher.ErrTransport), errs[0].Kind)
}

func TestProcessQueueRetryableFailureHitsAttemptCap(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{
		failureOutcome(publisher.ErrTransport),
		failureOutcome(publisher.ErrTransport),
		failureOutcome(publisher.ErrTransport),
	}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 1)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.ProcessQueue(ctx, queueID))
	}

	q, _ := qr.GetByID(ctx, queueID)
	assert.Equal(t, models.QueueStatusFailed, q.Status)
	assert.Nil(t, q.Stats.NextDueAt)
}

func TestProcessQueueNonRetryableFailureParksQueue(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{failureOutcome(publisher.ErrCredentialInvalid)}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 2)

	ctx := context.Background()
	require.NoError(t, engine.ProcessQueue(ctx, queueID))

	q, _ := qr.GetByID(ctx, queueID)
	assert.Equal(t, models.QueueStatusFailed, q.Status)
	assert.Nil(t, q.Stats.NextDueAt)
	assert.Equal(t, 1, pub.calls)
}

func TestProcessQueuePartialSuccessPostsByDefault(t *testing.T) {
	mixed := orchestrator.Outcome{
		Results: []publisher.Result{
			{Platform: models.PlatformInstagram, Success: true, ExternalPostID: "ig-9"},
			{Platform: models.PlatformTiktok, ErrorKind: publisher.ErrRemoteRejected, Message: "rejected"},
		},
		Errors: []orchestrator.PlatformError{
			{Platform: models.PlatformTiktok, Kind: publisher.ErrRemoteRejected, Message: "rejected"},
		},
	}
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{mixed}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 1)

	ctx := context.Background()
	require.NoError(t, engine.ProcessQueue(ctx, queueID))

	entries, _ := qr.ListEntries(ctx, queueID)
	assert.True(t, entries[0].Posted)
	assert.Equal(t, "ig-9", entries[0].ExternalPostID)

	errs, _ := qr.ListErrors(ctx, queueID, 10)
	require.Len(t, errs, 1)
	assert.Equal(t, models.PlatformTiktok, errs[0].Platform)
}

func TestProcessQueuePartialSuccessFailsWhenAllRequired(t *testing.T) {
	mixed := orchestrator.Outcome{
		Results: []publisher.Result{
			{Platform: models.PlatformInstagram, Success: true, ExternalPostID: "ig-9"},
			{Platform: models.PlatformTiktok, ErrorKind: publisher.ErrRemoteRejected, Message: "rejected"},
		},
		Errors: []orchestrator.PlatformError{
			{Platform: models.PlatformTiktok, Kind: publisher.ErrRemoteRejected, Message: "rejected"},
		},
	}
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{mixed}}
	engine, qr, ir := testEngine(t, pub)
	engine.cfg.RequireAllPlatforms = true
	queueID := seedQueue(t, qr, ir, 1)

	ctx := context.Background()
	require.NoError(t, engine.ProcessQueue(ctx, queueID))

	entries, _ := qr.ListEntries(ctx, queueID)
	assert.False(t, entries[0].Posted)

	q, _ := qr.GetByID(ctx, queueID)
	assert.Equal(t, models.QueueStatusFailed, q.Status)
}

func TestProcessQueueEmptyQueueCompletes(t *testing.T) {
	pub := &scriptedPublisher{}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 0)

	ctx := context.Background()
	require.NoError(t, engine.ProcessQueue(ctx, queueID))

	q, _ := qr.GetByID(ctx, queueID)
	assert.Equal(t, models.QueueStatusCompleted, q.Status)
	assert.Nil(t, q.Stats.NextDueAt)
	assert.Equal(t, 0, pub.calls)
}

func TestProcessQueuePausedQueueIsSkipped(t *testing.T) {
	pub := &scriptedPublisher{}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 1)
	require.NoError(t, qr.UpdateStatus(context.Background(), queueID, models.QueueStatusPaused))

	require.NoError(t, engine.ProcessQueue(context.Background(), queueID))
	assert.Equal(t, 0, pub.calls)
}

// Two dispatches racing on the same queue must publish exactly once;
// the claim decides the winner.
func TestProcessQueueConcurrentDispatchPublishesOnce(t *testing.T) {
	block := make(chan struct{})
	pub := &blockingPublisher{release: block}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 1)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- engine.ProcessQueue(ctx, queueID) }()

	// Wait until the first dispatch holds the claim.
	require.Eventually(t, func() bool {
		q, _ := qr.GetByID(ctx, queueID)
		return q.InFlight
	}, time.Second, time.Millisecond)

	require.NoError(t, engine.ProcessQueue(ctx, queueID))

	close(block)
	require.NoError(t, <-done)

	assert.Equal(t, 1, pub.Calls())
	entries, _ := qr.ListEntries(ctx, queueID)
	assert.True(t, entries[0].Posted)
}

type blockingPublisher struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, item *models.ContentItem, target orchestrator.Target) orchestrator.Outcome {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	<-p.release
	return successOutcome("once")
}

func (p *blockingPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestTickDispatchesDueQueues(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{successOutcome("x")}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 1)

	// Second queue is not due yet.
	future := time.Now().Add(time.Hour)
	notDueID, err := qr.Create(context.Background(), &models.PublishQueue{
		ProfileID: 1,
		Name:      "later",
		Status:    models.QueueStatusScheduled,
		Scheduling: models.SchedulingConfig{
			Enabled:  true,
			AutoPost: true,
			StartAt:  time.Now(),
			Interval: models.IntervalDaily,
		},
		Stats: models.QueueStats{NextDueAt: &future},
	})
	require.NoError(t, err)

	require.NoError(t, engine.Tick(context.Background()))

	assert.Equal(t, 1, pub.calls)
	q, _ := qr.GetByID(context.Background(), queueID)
	assert.Equal(t, models.QueueStatusCompleted, q.Status)
	notDue, _ := qr.GetByID(context.Background(), notDueID)
	assert.Equal(t, models.QueueStatusScheduled, notDue.Status)
}

// A queue published this tick is not due again until its next interval,
// so an immediately following tick must leave it untouched.
func TestTickDoesNotRepublishUntilNextDue(t *testing.T) {
	pub := &scriptedPublisher{outcomes: []orchestrator.Outcome{successOutcome("first")}}
	engine, qr, ir := testEngine(t, pub)
	queueID := seedQueue(t, qr, ir, 3)

	ctx := context.Background()
	require.NoError(t, engine.Tick(ctx))
	require.NoError(t, engine.Tick(ctx))

	assert.Equal(t, 1, pub.calls)

	entries, _ := qr.ListEntries(ctx, queueID)
	assert.True(t, entries[0].Posted)
	assert.Equal(t, "first", entries[0].ExternalPostID)
	assert.False(t, entries[1].Posted)

	q, _ := qr.GetByID(ctx, queueID)
	require.NotNil(t, q.Stats.NextDueAt)
	assert.True(t, q.Stats.NextDueAt.After(time.Now()))
}

func TestStartStopIdempotent(t *testing.T) {
	pub := &scriptedPublisher{}
	engine, _, _ := testEngine(t, pub)

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Start())
	engine.Stop()
	engine.Stop()
}
