package controller

import (
	"messenger-sync/contact"
	"messenger-sync/middleware"

	"github.com/gofiber/fiber/v2"
)

type ContactRenameInput struct {
	ContactName string `json:"contactName"`
}

func (ctl *Controller) ContactList(c *fiber.Ctx) error {
	contacts, err := ctl.Contacts.List(c.UserContext(), middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return success(c, contacts)
}

func (ctl *Controller) ContactAdd(c *fiber.Ctx) error {
	input := new(contact.AddRequest)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	r, err := ctl.Contacts.Add(c.UserContext(), middleware.Actor(c), *input)
	if err != nil {
		return fail(c, err)
	}
	return result(c, r)
}

func (ctl *Controller) ContactRename(c *fiber.Ctx) error {
	input := new(ContactRenameInput)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	r, err := ctl.Contacts.Rename(c.UserContext(), middleware.Actor(c), c.Params("contactUserId"), input.ContactName)
	if err != nil {
		return fail(c, err)
	}
	return result(c, r)
}

func (ctl *Controller) ContactDelete(c *fiber.Ctx) error {
	r, err := ctl.Contacts.Delete(c.UserContext(), middleware.Actor(c), c.Params("contactUserId"), c.Query("chatId"))
	if err != nil {
		return fail(c, err)
	}
	return result(c, r)
}
