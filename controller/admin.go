package controller

import (
	"github.com/gofiber/fiber/v2"
)

func (ctl *Controller) AdminUsers(c *fiber.Ctx) error {
	users, err := ctl.Users.List(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return success(c, users)
}

// AdminReap forces stale presences offline right away instead of waiting
// for the next reaper tick.
func (ctl *Controller) AdminReap(c *fiber.Ctx) error {
	reaped, err := ctl.Presence.ReapStale(c.UserContext(), ctl.StaleAfter)
	if err != nil {
		return fail(c, err)
	}
	return success(c, fiber.Map{"reaped": reaped})
}
