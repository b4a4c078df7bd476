package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/orchestrator"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/tasks"
	"github.com/queueflow/queueflow/internal/transfer"
)

type PublishHandler struct {
	cr          repository.ContentItemRepository
	orch        *orchestrator.Orchestrator
	AsynqClient *asynq.Client
}

func NewPublishHandler(cr repository.ContentItemRepository, orch *orchestrator.Orchestrator, asynqClient *asynq.Client) *PublishHandler {
	return &PublishHandler{cr: cr, orch: orch, AsynqClient: asynqClient}
}

// PublishItem publishes one content item immediately. With async set
// the work goes through the task broker and the call returns as soon as
// the task is accepted.
func (h *PublishHandler) PublishItem(c *fiber.Ctx) error {
	var input transfer.PublishRequest
	if err := c.BodyParser(&input); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if !input.All && !models.Platform(input.Platform).Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}

	if input.Async {
		err := tasks.EnqueuePublishItem(h.AsynqClient, tasks.PublishItemPayload{
			ItemID:   input.ItemID,
			Platform: input.Platform,
			All:      input.All,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error scheduling publish",
			})
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Publish scheduled",
		})
	}

	item, err := h.cr.GetByID(c.Context(), input.ItemID)
	if err != nil || item == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to get content item",
		})
	}

	target := orchestrator.AllConfigured()
	if !input.All {
		target = orchestrator.Single(models.Platform(input.Platform))
	}

	outcome := h.orch.Publish(c.Context(), item, target)
	return c.Status(fiber.StatusOK).JSON(outcome)
}
