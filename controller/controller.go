package controller

import (
	"time"

	"messenger-sync/chatlist"
	"messenger-sync/contact"
	"messenger-sync/directory"
	"messenger-sync/logger"
	"messenger-sync/messenger"
	"messenger-sync/presence"
	"messenger-sync/utils"

	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services is everything the REST and socket handlers call into.
type Services struct {
	DB       *gorm.DB
	Tokens   *redis.Client
	Enforcer *casbin.Enforcer

	Users    *directory.Directory
	Contacts *contact.Graph
	Messages *messenger.Store
	Chats    *chatlist.Aggregator
	Presence *presence.Tracker

	StaleAfter time.Duration
}

type Controller struct {
	Services
}

func New(services Services) *Controller {
	return &Controller{Services: services}
}

func success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    nil,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	logger.L().Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return failure(c, fiber.StatusInternalServerError, "Internal server error")
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind utils.Kind) int {
	switch kind {
	case utils.KindNotFound:
		return fiber.StatusNotFound
	case utils.KindAlreadyExists:
		return fiber.StatusOK
	case utils.KindValidation:
		return fiber.StatusBadRequest
	case utils.KindUnauthorized:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	kind := utils.KindOf(err)
	if kind == utils.KindTransient {
		return internalError(c, err)
	}
	return failure(c, StatusFor(kind), err.Error())
}

// result writes a contact graph outcome. Warnings are not failures.
func result(c *fiber.Ctx, r *utils.Result) error {
	status := fiber.StatusOK
	if r.Status == utils.StatusError {
		status = StatusFor(r.Kind)
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  r.Status,
		"message": r.Message,
		"data":    r,
	})
}
