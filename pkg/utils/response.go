package utils

import "github.com/gofiber/fiber/v2"

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func Message(c *fiber.Ctx, status int, message string) error {
	return Success(c, status, fiber.Map{"message": message})
}

func Paged(c *fiber.Ctx, pages int, total int64, notes interface{}) error {
	return Success(c, fiber.StatusOK, fiber.Map{
		"pages": pages,
		"total": total,
		"notes": notes,
	})
}
