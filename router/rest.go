package router

import (
	"messenger-sync/controller"
	"messenger-sync/metrics"
	"messenger-sync/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func Rest(app *fiber.App, ctl *controller.Controller) {
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/v1", logger.New())

	// Auth
	auth := api.Group("/auth")
	auth.Post("/signup", ctl.AuthSignup)
	auth.Post("/signin", ctl.AuthSignin)
	auth.Post("/token/renew", ctl.AuthTokenRenew)
	auth.Post("/2fa/secret", middleware.JWT(), middleware.OTP(), ctl.AuthOtpSecret)
	auth.Post("/2fa/verify", middleware.JWT(), middleware.OTP(), ctl.AuthOtpVerify)
	auth.Post("/2fa/validate", middleware.JWT(), ctl.AuthOtpValidate)
	auth.Post("/2fa/disable", middleware.JWT(), middleware.OTP(), ctl.AuthOtpDisable)

	// User
	user := api.Group("/user", middleware.JWT(), middleware.OTP())
	user.Get("/profile", ctl.UserProfile)

	directory := api.Group("/directory", middleware.JWT(), middleware.OTP())
	directory.Get("/lookup", ctl.DirectoryLookup)

	// Contacts
	contacts := api.Group("/contacts", middleware.JWT(), middleware.OTP())
	contacts.Get("", ctl.ContactList)
	contacts.Post("", ctl.ContactAdd)
	contacts.Patch("/:contactUserId", ctl.ContactRename)
	contacts.Delete("/:contactUserId", ctl.ContactDelete)

	// Chats
	chats := api.Group("/chats", middleware.JWT(), middleware.OTP())
	chats.Get("", ctl.ChatList)
	chats.Get("/:chatId/messages", ctl.ChatMessages)
	chats.Post("/:chatId/messages", ctl.ChatSend)
	chats.Delete("/:chatId/messages", ctl.ChatClear)
	chats.Post("/:chatId/read", ctl.ChatRead)

	// Presence
	presence := api.Group("/presence", middleware.JWT(), middleware.OTP())
	presence.Post("/touch", ctl.PresenceTouch)
	presence.Get("/:userId", ctl.PresenceGet)

	// Admin
	if ctl.Enforcer != nil {
		admin := api.Group("/admin", middleware.JWT(), middleware.OTP(), middleware.RBAC(ctl.Enforcer))
		admin.Get("/users", ctl.AdminUsers)
		admin.Post("/presence/reap", ctl.AdminReap)
	}
}
