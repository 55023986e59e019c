package controller

import (
	"time"

	"messenger-sync/middleware"
	"messenger-sync/presence"

	"github.com/gofiber/fiber/v2"
)

func (ctl *Controller) PresenceGet(c *fiber.Ctx) error {
	userID := c.Params("userId")
	snapshot, err := ctl.Presence.Get(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}

	return success(c, fiber.Map{
		"userId":      userID,
		"isOnline":    snapshot.IsOnline,
		"lastSeen":    snapshot.LastSeen,
		"connectedAt": snapshot.ConnectedAt,
		"status":      presence.StatusText(snapshot, userID == middleware.Actor(c), time.Now()),
	})
}

func (ctl *Controller) PresenceTouch(c *fiber.Ctx) error {
	ctl.Presence.Touch(c.UserContext(), middleware.Actor(c))
	return success(c, nil)
}
