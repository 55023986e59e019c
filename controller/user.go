package controller

import (
	"messenger-sync/middleware"

	"github.com/gofiber/fiber/v2"
)

func (ctl *Controller) UserProfile(c *fiber.Ctx) error {
	user, err := ctl.currentUser(c)
	if err != nil {
		return fail(c, err)
	}

	return success(c, fiber.Map{
		"id":          user.ID,
		"created":     user.CreatedAt.Unix(),
		"email":       user.Email,
		"firstName":   user.FirstName,
		"lastName":    user.LastName,
		"displayName": user.Name(),
		"role":        user.Role,
		"otp":         user.OtpEnabled,
	})
}

// DirectoryLookup resolves an email to a user id for the contact form.
func (ctl *Controller) DirectoryLookup(c *fiber.Ctx) error {
	user, err := ctl.Users.FindUserByEmail(c.UserContext(), c.Query("email"))
	if err != nil {
		return fail(c, err)
	}

	return success(c, fiber.Map{
		"id":          user.ID,
		"email":       user.Email,
		"displayName": user.Name(),
		"self":        user.ID == middleware.Actor(c),
	})
}
