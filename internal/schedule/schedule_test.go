package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueflow/queueflow/internal/models"
)

func dailyConfig(startAt time.Time) models.SchedulingConfig {
	return models.SchedulingConfig{
		Enabled:  true,
		AutoPost: true,
		StartAt:  startAt,
		Interval: models.IntervalDaily,
	}
}

func TestComputeNextDue_DisabledOrUnanchored(t *testing.T) {
	now := time.Now()

	cfg := dailyConfig(now.Add(-time.Hour))
	cfg.Enabled = false
	assert.Nil(t, ComputeNextDue(cfg, nil, now))

	assert.Nil(t, ComputeNextDue(dailyConfig(time.Time{}), nil, now))
}

func TestComputeNextDue_StartElapsed_PostingTimeStillAhead(t *testing.T) {
	// 09:00 local; posting time 18:00 -> due later today at 18:00.
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	cfg := dailyConfig(now.Add(-48 * time.Hour))
	cfg.PostingTime = &models.ClockTime{Hour: 18, Minute: 30, Timezone: "UTC"}

	due := ComputeNextDue(cfg, nil, now)
	require.NotNil(t, due)
	assert.Equal(t, time.Date(2026, 8, 31, 18, 30, 0, 0, time.UTC), *due)
}

func TestComputeNextDue_StartElapsed_PostingTimePassed(t *testing.T) {
	// 20:00 local; posting time 18:00 -> due tomorrow at 18:00.
	now := time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC)

	cfg := dailyConfig(now.Add(-48 * time.Hour))
	cfg.PostingTime = &models.ClockTime{Hour: 18, Minute: 0, Timezone: "UTC"}

	due := ComputeNextDue(cfg, nil, now)
	require.NotNil(t, due)
	assert.Equal(t, time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC), *due)
}

func TestComputeNextDue_StartElapsed_NoPostingTime(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	due := ComputeNextDue(dailyConfig(now.Add(-time.Hour)), nil, now)
	require.NotNil(t, due)
	assert.Equal(t, now, *due, "elapsed start with no prior post is due immediately")
}

func TestComputeNextDue_FutureStart(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	startAt := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)

	due := ComputeNextDue(dailyConfig(startAt), nil, now)
	require.NotNil(t, due)
	assert.Equal(t, startAt, *due)

	cfg := dailyConfig(startAt)
	cfg.PostingTime = &models.ClockTime{Hour: 8, Minute: 15, Timezone: "UTC"}
	due = ComputeNextDue(cfg, nil, now)
	require.NotNil(t, due)
	assert.Equal(t, time.Date(2026, 9, 5, 8, 15, 0, 0, time.UTC), *due,
		"posting time overrides clock but keeps the date")
}

func TestComputeNextDue_AfterPost(t *testing.T) {
	now := time.Date(2026, 8, 31, 18, 5, 0, 0, time.UTC)
	lastPosted := time.Date(2026, 8, 31, 18, 1, 0, 0, time.UTC)

	cfg := dailyConfig(now.Add(-72 * time.Hour))
	cfg.PostingTime = &models.ClockTime{Hour: 18, Minute: 0, Timezone: "UTC"}

	due := ComputeNextDue(cfg, &lastPosted, now)
	require.NotNil(t, due)
	assert.Equal(t, time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC), *due)
}

func TestComputeNextDue_Intervals(t *testing.T) {
	lastPosted := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	now := lastPosted.Add(time.Minute)

	cases := []struct {
		interval string
		hours    int
		want     time.Time
	}{
		{models.IntervalDaily, 0, lastPosted.Add(24 * time.Hour)},
		{models.IntervalEveryOtherDay, 0, lastPosted.Add(48 * time.Hour)},
		{models.IntervalWeekly, 0, lastPosted.Add(7 * 24 * time.Hour)},
		{models.IntervalCustomHours, 6, lastPosted.Add(6 * time.Hour)},
	}

	for _, tc := range cases {
		t.Run(tc.interval, func(t *testing.T) {
			cfg := dailyConfig(lastPosted.Add(-time.Hour))
			cfg.Interval = tc.interval
			cfg.IntervalHours = tc.hours

			due := ComputeNextDue(cfg, &lastPosted, now)
			require.NotNil(t, due)
			assert.Equal(t, tc.want, *due)
		})
	}
}

func TestComputeNextDue_InvalidCustomHours(t *testing.T) {
	cfg := dailyConfig(time.Now().Add(-time.Hour))
	cfg.Interval = models.IntervalCustomHours
	cfg.IntervalHours = 0

	assert.Nil(t, ComputeNextDue(cfg, nil, time.Now()))
}

func TestComputeNextDue_ExhaustedPastEnd(t *testing.T) {
	lastPosted := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	endAt := lastPosted.Add(12 * time.Hour)

	cfg := dailyConfig(lastPosted.Add(-time.Hour))
	cfg.EndAt = &endAt

	assert.Nil(t, ComputeNextDue(cfg, &lastPosted, lastPosted.Add(time.Minute)))
}

func TestComputeNextDue_Idempotent(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	lastPosted := now.Add(-20 * time.Hour)

	cfg := dailyConfig(now.Add(-72 * time.Hour))
	cfg.PostingTime = &models.ClockTime{Hour: 11, Minute: 45, Timezone: "UTC"}

	first := ComputeNextDue(cfg, &lastPosted, now)
	second := ComputeNextDue(cfg, &lastPosted, now)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	base := func() *models.PublishQueue {
		return &models.PublishQueue{
			Status: models.QueueStatusScheduled,
			Scheduling: models.SchedulingConfig{
				Enabled:  true,
				AutoPost: true,
			},
			Stats: models.QueueStats{NextDueAt: &past},
		}
	}

	assert.True(t, IsDue(base(), now))

	q := base()
	q.Scheduling.AutoPost = false
	assert.False(t, IsDue(q, now))

	q = base()
	q.Status = models.QueueStatusPaused
	assert.False(t, IsDue(q, now))

	q = base()
	q.Status = models.QueueStatusPosting
	assert.True(t, IsDue(q, now))

	q = base()
	q.Stats.NextDueAt = &future
	assert.False(t, IsDue(q, now))

	q = base()
	q.Stats.NextDueAt = nil
	assert.False(t, IsDue(q, now))
}

func TestNextUnposted_FIFO(t *testing.T) {
	entries := []models.QueueEntry{
		{ID: 3, Position: 2},
		{ID: 1, Position: 0, Posted: true},
		{ID: 2, Position: 1},
	}

	next, ok := NextUnposted(entries)
	require.True(t, ok)
	assert.Equal(t, int64(2), next.ID)

	_, ok = NextUnposted([]models.QueueEntry{{Position: 0, Posted: true}})
	assert.False(t, ok)
}

func TestRenumber_ContiguousAfterRemoval(t *testing.T) {
	entries := []models.QueueEntry{
		{ID: 1, Position: 0},
		{ID: 3, Position: 3},
		{ID: 5, Position: 7},
	}

	renumbered := Renumber(entries)
	require.Len(t, renumbered, 3)
	for i, e := range renumbered {
		assert.Equal(t, i, e.Position)
	}
	assert.Equal(t, int64(1), renumbered[0].ID)
	assert.Equal(t, int64(3), renumbered[1].ID)
	assert.Equal(t, int64(5), renumbered[2].ID)

	// Input slice stays untouched.
	assert.Equal(t, 7, entries[2].Position)
}

func TestStats_InvariantAfterMixedOperations(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	entries := []models.QueueEntry{
		{ID: 1, Position: 0, Posted: true, PostedAt: &now},
		{ID: 2, Position: 1},
		{ID: 3, Position: 2, Posted: true, PostedAt: &later},
		{ID: 4, Position: 3},
	}

	stats := RecomputeStats(entries, models.QueueStats{})
	assert.Equal(t, 4, stats.TotalItems)
	assert.Equal(t, 2, stats.PostedItems)
	require.NotNil(t, stats.LastPostedAt)
	assert.Equal(t, later, *stats.LastPostedAt)

	// Remove an unposted entry, renumber, recount.
	entries = Renumber(append(entries[:1], entries[2:]...))
	stats = RecomputeStats(entries, stats)
	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 2, stats.PostedItems)

	positions := make([]int, len(entries))
	for i, e := range entries {
		positions[i] = e.Position
	}
	assert.Equal(t, []int{0, 1, 2}, positions)
}
