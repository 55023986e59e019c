package middleware

import (
	"messenger-sync/logger"

	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
)

func RBAC(enforcer *casbin.Enforcer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Load policy from Database
		if err := enforcer.LoadPolicy(); err != nil {
			logger.L().Errorw("casbin policy load failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		// Casbin enforces policy
		accepted, err := enforcer.Enforce(Actor(c), c.Path(), c.Method())
		if err != nil {
			logger.L().Errorw("casbin enforce failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		if !accepted {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"message": "Unauthorized",
				"data":    nil,
			})
		}

		return c.Next()
	}
}
