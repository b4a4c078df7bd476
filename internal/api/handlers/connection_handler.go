package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/service"
	"github.com/queueflow/queueflow/internal/transfer"
)

type ConnectionHandler struct {
	s service.ConnectionService
}

func NewConnectionHandler(service service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{s: service}
}

// GetConnection reports the effective connection for a profile and
// platform without exposing any token material.
func (h *ConnectionHandler) GetConnection(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)
	platform := models.Platform(c.Query("platform"))

	conn, err := h.s.Resolve(c.Context(), int64(profileID), platform)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to resolve connection",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"platform":          conn.Platform,
		"connected":         conn.Connected,
		"source":            conn.Source,
		"external_username": conn.ExternalUsername,
		"expires_at":        conn.ExpiresAt,
	})
}

func (h *ConnectionHandler) SetCredential(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)
	platform := models.Platform(c.Query("platform"))

	var input transfer.CredentialInput
	if err := c.BodyParser(&input); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.SetOwnCredential(c.Context(), int64(profileID), platform, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Credential saved",
	})
}

func (h *ConnectionHandler) UseParent(c *fiber.Ctx) error {
	profileID := c.QueryInt("profile_id", 0)
	platform := models.Platform(c.Query("platform"))

	if err := h.s.UseParentConnection(c.Context(), int64(profileID), platform); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Profile now uses the account connection",
	})
}
