package controller

import (
	"time"

	"messenger-sync/messenger"
	"messenger-sync/middleware"
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
)

type ChatSendInput struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

func (ctl *Controller) ChatList(c *fiber.Ctx) error {
	chats, err := ctl.Chats.List(c.UserContext(), middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return success(c, chats)
}

// ChatMessages returns the newest page, or the page before ?before= when
// given.
func (ctl *Controller) ChatMessages(c *fiber.Ctx) error {
	chatID := c.Params("chatId")
	if err := ctl.requireParticipant(c, chatID); err != nil {
		return fail(c, err)
	}

	limit := c.QueryInt("limit", 0)
	before := c.Query("before")
	if before == "" {
		messages, err := ctl.Messages.Latest(c.UserContext(), chatID, limit)
		if err != nil {
			return fail(c, err)
		}
		return success(c, messages)
	}

	ts, err := time.Parse(time.RFC3339Nano, before)
	if err != nil {
		return failure(c, fiber.StatusBadRequest, "before must be an RFC 3339 timestamp")
	}
	messages, err := ctl.Messages.FetchOlder(c.UserContext(), chatID, messenger.Cursor{
		Timestamp: ts,
		MessageID: c.Query("beforeId"),
	}, limit)
	if err != nil {
		return fail(c, err)
	}
	return success(c, messages)
}

func (ctl *Controller) ChatSend(c *fiber.Ctx) error {
	input := new(ChatSendInput)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	actor := middleware.Actor(c)
	sender, err := ctl.Users.Get(c.UserContext(), actor)
	if err != nil {
		return fail(c, err)
	}

	sent, err := ctl.Messages.Send(c.UserContext(), c.Params("chatId"), actor, sender.Name(), input.Text, input.Type)
	if err != nil {
		return fail(c, err)
	}
	return success(c, sent)
}

func (ctl *Controller) ChatRead(c *fiber.Ctx) error {
	marked, err := ctl.Messages.MarkRead(c.UserContext(), c.Params("chatId"), middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return success(c, fiber.Map{"marked": marked})
}

func (ctl *Controller) ChatClear(c *fiber.Ctx) error {
	r, err := ctl.Contacts.ClearHistory(c.UserContext(), middleware.Actor(c), c.Params("chatId"))
	if err != nil {
		return fail(c, err)
	}
	return result(c, r)
}

func (ctl *Controller) requireParticipant(c *fiber.Ctx, chatID string) error {
	ok, err := ctl.Messages.IsParticipant(c.UserContext(), chatID, middleware.Actor(c))
	if err != nil {
		return err
	}
	if !ok {
		return utils.Unauthorized("not a participant of this chat")
	}
	return nil
}
