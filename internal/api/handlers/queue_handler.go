package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/queueflow/queueflow/internal/service"
	"github.com/queueflow/queueflow/internal/transfer"
)

type QueueHandler struct {
	s service.QueueService
}

func NewQueueHandler(service service.QueueService) *QueueHandler {
	return &QueueHandler{s: service}
}

func (h *QueueHandler) CreateQueue(c *fiber.Ctx) error {
	var input transfer.QueueCreation
	if err := c.BodyParser(&input); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	q, err := h.s.Create(c.Context(), input.ProfileID, input.Name)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(q)
}

func (h *QueueHandler) ListQueues(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)
	queueID := c.QueryInt("id", 0)

	if queueID != 0 {
		q, err := h.s.Get(c.Context(), int64(queueID))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to get queue",
			})
		}

		return c.Status(fiber.StatusOK).JSON(q)
	}

	queues, err := h.s.ListByProfile(c.Context(), int64(profileID))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list queues",
		})
	}

	return c.Status(fiber.StatusOK).JSON(queues)
}

func (h *QueueHandler) ListEntries(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	entries, err := h.s.Entries(c.Context(), int64(queueID))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list queue entries",
		})
	}

	return c.Status(fiber.StatusOK).JSON(entries)
}

func (h *QueueHandler) AddEntry(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	var input transfer.QueueEntryInput
	if err := c.BodyParser(&input); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	entryID, err := h.s.AddItem(c.Context(), int64(queueID), input.ItemID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"entry_id": entryID,
	})
}

func (h *QueueHandler) RemoveEntry(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)
	entryID := c.QueryInt("entry_id", 0)

	if err := h.s.RemoveItem(c.Context(), int64(queueID), int64(entryID)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove queue entry",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *QueueHandler) ReorderEntries(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	var input transfer.QueueReorderInput
	if err := c.BodyParser(&input); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.Reorder(c.Context(), int64(queueID), input.EntryIDs); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *QueueHandler) UpdateScheduling(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	var input transfer.SchedulingInput
	if err := c.BodyParser(&input); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.UpdateScheduling(c.Context(), int64(queueID), &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *QueueHandler) PauseQueue(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	if err := h.s.Pause(c.Context(), int64(queueID)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *QueueHandler) ResumeQueue(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	if err := h.s.Resume(c.Context(), int64(queueID)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *QueueHandler) QueueStatus(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)

	status, err := h.s.Status(c.Context(), int64(queueID))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to get queue status",
		})
	}

	return c.Status(fiber.StatusOK).JSON(status)
}

func (h *QueueHandler) QueueErrors(c *fiber.Ctx) error {
	queueID := c.QueryInt("id", 0)
	limit := c.QueryInt("limit", 20)

	errs, err := h.s.Errors(c.Context(), int64(queueID), limit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list queue errors",
		})
	}

	return c.Status(fiber.StatusOK).JSON(errs)
}
