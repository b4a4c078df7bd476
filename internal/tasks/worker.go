package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/orchestrator"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/scheduler"
)

// Worker executes publish tasks pulled from the asynq broker.
type Worker struct {
	engine *scheduler.Engine
	orch   *orchestrator.Orchestrator
	cr     repository.ContentItemRepository
}

func NewWorker(engine *scheduler.Engine, orch *orchestrator.Orchestrator, cr repository.ContentItemRepository) *Worker {
	return &Worker{engine: engine, orch: orch, cr: cr}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePublishQueue, w.HandlePublishQueueTask)
	mux.HandleFunc(TaskTypePublishItem, w.HandlePublishItemTask)
}

func (w *Worker) HandlePublishQueueTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishQueuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return w.engine.ProcessQueue(ctx, payload.QueueID)
}

// HandlePublishItemTask publishes one content item outside any queue.
// Failures are logged per platform; the task itself only fails on
// payload or lookup errors so asynq does not blindly retry a publish
// the remote already rejected.
func (w *Worker) HandlePublishItemTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishItemPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	item, err := w.cr.GetByID(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("content item %d not found", payload.ItemID)
	}

	target := orchestrator.AllConfigured()
	if !payload.All {
		target = orchestrator.Single(models.Platform(payload.Platform))
	}

	outcome := w.orch.Publish(ctx, item, target)
	for _, pe := range outcome.Errors {
		slog.Info(fmt.Sprintf("publishing item %d to %s: %s", item.ID, pe.Platform, pe.Message))
	}
	return nil
}
