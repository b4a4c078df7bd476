package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func GetAccountID(c *fiber.Ctx) int64 {
	accountID, _ := strconv.Atoi(c.Locals("account_id").(string))
	return int64(accountID)
}
