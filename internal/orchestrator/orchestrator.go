package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/queueflow/queueflow/internal/connection"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/publisher"
)

// Target selects which platforms one publish call addresses: a single
// platform, or every platform the item explicitly requests.
type Target struct {
	All      bool
	Platform models.Platform
}

func Single(p models.Platform) Target {
	return Target{Platform: p}
}

func AllConfigured() Target {
	return Target{All: true}
}

// ConnectionResolver yields the effective credential for one
// profile+platform pair.
type ConnectionResolver interface {
	Resolve(ctx context.Context, profileID int64, platform models.Platform) (connection.EffectiveConnection, error)
}

type PlatformError struct {
	Platform models.Platform     `json:"platform"`
	Kind     publisher.ErrorKind `json:"kind"`
	Message  string              `json:"message"`
}

// Outcome aggregates every per-platform result of one publish. One
// platform's failure never hides another platform's success.
type Outcome struct {
	Results []publisher.Result `json:"results"`
	Errors  []PlatformError    `json:"errors"`
}

func (o Outcome) AnySuccess() bool {
	for _, r := range o.Results {
		if r.Success {
			return true
		}
	}
	return false
}

func (o Outcome) AllSuccess() bool {
	if len(o.Results) == 0 {
		return false
	}
	return len(o.Errors) == 0
}

// FirstSuccess returns the first successful result in platform order.
func (o Outcome) FirstSuccess() (publisher.Result, bool) {
	for _, r := range o.Results {
		if r.Success {
			return r, true
		}
	}
	return publisher.Result{}, false
}

// RetryEligible reports whether every failure in the outcome could
// succeed on a plain retry.
func (o Outcome) RetryEligible() bool {
	for _, e := range o.Errors {
		if !e.Kind.Retryable() {
			return false
		}
	}
	return true
}

type Orchestrator struct {
	resolver ConnectionResolver
	registry publisher.Registry
}

func New(resolver ConnectionResolver, registry publisher.Registry) *Orchestrator {
	return &Orchestrator{resolver: resolver, registry: registry}
}

// Publish fans the item out to every targeted platform. Pipelines run
// concurrently and independently; the call returns once all of them
// have terminated, with every result collected.
func (o *Orchestrator) Publish(ctx context.Context, item *models.ContentItem, target Target) Outcome {
	platforms := o.targetPlatforms(item, target)

	var wg sync.WaitGroup
	results := make([]publisher.Result, len(platforms))

	for i, platform := range platforms {
		wg.Add(1)
		go func(idx int, plt models.Platform) {
			defer wg.Done()
			results[idx] = o.publishOne(ctx, item, plt)
		}(i, platform)
	}

	wg.Wait()

	outcome := Outcome{Results: results}
	for _, r := range results {
		if !r.Success {
			outcome.Errors = append(outcome.Errors, PlatformError{
				Platform: r.Platform,
				Kind:     r.ErrorKind,
				Message:  r.Message,
			})
		}
	}
	return outcome
}

func (o *Orchestrator) publishOne(ctx context.Context, item *models.ContentItem, platform models.Platform) publisher.Result {
	pub, ok := o.registry.Get(platform)
	if !ok {
		return publisher.Result{
			Platform:  platform,
			ErrorKind: publisher.ErrUnsupportedPlatform,
			Message:   fmt.Sprintf("no publisher registered for %s", platform),
		}
	}

	conn, err := o.resolver.Resolve(ctx, item.ProfileID, platform)
	if err != nil {
		slog.Info(err.Error())
		return publisher.Result{
			Platform:  platform,
			ErrorKind: publisher.ErrTransport,
			Message:   fmt.Sprintf("resolving credentials: %v", err),
		}
	}

	return pub.Publish(ctx, conn, item)
}

// targetPlatforms expands the target to concrete platforms. "All" means
// the platforms the item explicitly requests, not every platform that
// exists.
func (o *Orchestrator) targetPlatforms(item *models.ContentItem, target Target) []models.Platform {
	if !target.All {
		return []models.Platform{target.Platform}
	}

	platforms := make([]models.Platform, 0, len(item.Platforms))
	for _, p := range item.Platforms {
		if p.Valid() {
			platforms = append(platforms, p)
		}
	}
	return platforms
}
