package controller

import (
	"note-editor-core/internal/pkg/serverutils"
	"note-editor-core/internal/service"

	"github.com/gofiber/fiber/v2"
)

type INotificationController interface {
	RegisterRoutes(r fiber.Router)
	Recent(ctx *fiber.Ctx) error
}

type notificationController struct {
	dispatcher service.IDispatcherService
}

func NewNotificationController(dispatcher service.IDispatcherService) INotificationController {
	return &notificationController{
		dispatcher: dispatcher,
	}
}

func (c *notificationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/notification/v1")
	h.Get("recent", c.Recent)
}

func (c *notificationController) Recent(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	return ctx.JSON(serverutils.SuccessResponse("Recent notifications", c.dispatcher.Recent(limit)))
}
