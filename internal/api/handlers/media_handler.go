package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) CreateItem(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)

	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	caption := c.FormValue("caption")
	platformsStr := c.FormValue("platforms")

	var platforms []models.Platform
	if err := json.Unmarshal([]byte(platformsStr), &platforms); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid platforms format",
		})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files selected",
		})
	}

	itemID, err := h.s.CreateItem(c.Context(), int64(profileID), caption, platforms, files)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"item_id": itemID,
	})
}

func (h *MediaHandler) ListItems(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)
	itemID := c.QueryInt("id", 0)

	if itemID != 0 {
		item, err := h.s.ItemInfo(c.Context(), int64(profileID), int64(itemID))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to get content item",
			})
		}

		return c.Status(fiber.StatusOK).JSON(item)
	}

	items, err := h.s.List(c.Context(), int64(profileID))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list content items",
		})
	}

	return c.Status(fiber.StatusOK).JSON(items)
}

func (h *MediaHandler) RemoveItem(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)
	itemID := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), int64(profileID), int64(itemID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove content item",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
