// Package schedule holds the pure derivations over publish queues:
// due-time computation, entry ordering and stats. Nothing here touches
// storage or the network, so every rule is testable in isolation.
package schedule

import (
	"sort"
	"time"

	"github.com/queueflow/queueflow/internal/models"
)

// IntervalDuration translates a scheduling interval to a duration.
// Returns false for an interval that cannot produce a schedule.
func IntervalDuration(cfg models.SchedulingConfig) (time.Duration, bool) {
	switch cfg.Interval {
	case models.IntervalDaily:
		return 24 * time.Hour, true
	case models.IntervalEveryOtherDay:
		return 48 * time.Hour, true
	case models.IntervalWeekly:
		return 7 * 24 * time.Hour, true
	case models.IntervalCustomHours:
		if cfg.IntervalHours <= 0 {
			return 0, false
		}
		return time.Duration(cfg.IntervalHours) * time.Hour, true
	}
	return 0, false
}

// ComputeNextDue derives the next auto-publish instant. Nil means the
// queue is never due: scheduling disabled, no start anchor, a broken
// interval, or an end date already passed.
//
// With no prior post the queue is due at startAt itself, or - once
// startAt has elapsed - at the next occurrence of the posting time
// (later today if still ahead of now, else one interval later). After a
// post, the next due time is lastPostedAt plus one interval. The
// posting-time override replaces only the time of day, never the date.
func ComputeNextDue(cfg models.SchedulingConfig, lastPostedAt *time.Time, now time.Time) *time.Time {
	if !cfg.Enabled || cfg.StartAt.IsZero() {
		return nil
	}

	interval, ok := IntervalDuration(cfg)
	if !ok {
		return nil
	}

	var due time.Time
	switch {
	case lastPostedAt != nil:
		due = applyPostingTime(lastPostedAt.Add(interval), cfg.PostingTime)
	case cfg.StartAt.After(now):
		due = applyPostingTime(cfg.StartAt, cfg.PostingTime)
	default:
		due = applyPostingTime(now, cfg.PostingTime)
		if due.Before(now) {
			due = due.Add(interval)
		}
	}

	if cfg.EndAt != nil && due.After(*cfg.EndAt) {
		return nil
	}
	return &due
}

func applyPostingTime(t time.Time, ct *models.ClockTime) time.Time {
	if ct == nil {
		return t
	}

	loc := t.Location()
	if ct.Timezone != "" {
		if l, err := time.LoadLocation(ct.Timezone); err == nil {
			loc = l
		}
	}

	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), ct.Hour, ct.Minute, 0, 0, loc)
}

// IsDue reports whether a queue qualifies for auto-publish dispatch.
func IsDue(q *models.PublishQueue, now time.Time) bool {
	if !q.Scheduling.Enabled || !q.Scheduling.AutoPost {
		return false
	}
	if q.Status != models.QueueStatusScheduled && q.Status != models.QueueStatusPosting {
		return false
	}
	return q.Stats.NextDueAt != nil && !q.Stats.NextDueAt.After(now)
}

// NextUnposted picks the first unposted entry in position order.
func NextUnposted(entries []models.QueueEntry) (models.QueueEntry, bool) {
	var next models.QueueEntry
	found := false
	for _, e := range entries {
		if e.Posted {
			continue
		}
		if !found || e.Position < next.Position {
			next = e
			found = true
		}
	}
	return next, found
}

// Renumber returns a copy of the entries with contiguous 0..n-1
// positions, preserving the existing relative order.
func Renumber(entries []models.QueueEntry) []models.QueueEntry {
	out := make([]models.QueueEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	for i := range out {
		out[i].Position = i
	}
	return out
}

// RecomputeStats rebuilds the derived counters from the entries. The
// next-due field is owned by the scheduler and left untouched here.
func RecomputeStats(entries []models.QueueEntry, prev models.QueueStats) models.QueueStats {
	stats := models.QueueStats{
		TotalItems: len(entries),
		NextDueAt:  prev.NextDueAt,
	}
	for _, e := range entries {
		if !e.Posted {
			continue
		}
		stats.PostedItems++
		if e.PostedAt != nil && (stats.LastPostedAt == nil || e.PostedAt.After(*stats.LastPostedAt)) {
			stats.LastPostedAt = e.PostedAt
		}
	}
	return stats
}
