package controller

import (
	"errors"

	"note-editor-core/internal/dto"
	"note-editor-core/internal/pkg/serverutils"
	"note-editor-core/internal/registry"
	"note-editor-core/internal/service"

	"github.com/gofiber/fiber/v2"
)

// clientTokenHeader identifies the editing client. Each token owns one
// independent edit session.
const clientTokenHeader = "X-Client-Token"

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Snapshot(ctx *fiber.Ctx) error
	OpenCollection(ctx *fiber.Ctx) error
	Reauthorize(ctx *fiber.Ctx) error
	CancelReauthorization(ctx *fiber.Ctx) error
	SwitchDocument(ctx *fiber.Ctx) error
	Edit(ctx *fiber.Ctx) error
	InsertAsset(ctx *fiber.Ctx) error
	ListDocuments(ctx *fiber.Ctx) error
	Flush(ctx *fiber.Ctx) error
	Close(ctx *fiber.Ctx) error
}

type sessionController struct {
	sessions *registry.SessionRegistry
}

func NewSessionController(sessions *registry.SessionRegistry) ISessionController {
	return &sessionController{
		sessions: sessions,
	}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Get("", c.Snapshot)
	h.Post("collection/open", c.OpenCollection)
	h.Post("collection/reauthorize", c.Reauthorize)
	h.Post("collection/reauthorize/cancel", c.CancelReauthorization)
	h.Get("documents", c.ListDocuments)
	h.Post("document/switch", c.SwitchDocument)
	h.Post("document/edit", c.Edit)
	h.Post("document/asset", c.InsertAsset)
	h.Post("flush", c.Flush)
	h.Delete("", c.Close)
}

func (c *sessionController) session(ctx *fiber.Ctx) (service.ISessionService, error) {
	token := ctx.Get(clientTokenHeader)
	if token == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Missing "+clientTokenHeader+" header")
	}
	return c.sessions.GetOrCreate(token), nil
}

// mapSessionError translates session-state violations into a 409; the request
// was well-formed but illegal for the current state.
func mapSessionError(err error) error {
	if errors.Is(err, service.ErrNoActiveDocument) || errors.Is(err, service.ErrInvalidTransition) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

func (c *sessionController) Snapshot(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session snapshot", svc.Snapshot()))
}

func (c *sessionController) OpenCollection(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	var req dto.OpenCollectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := svc.OpenCollection(ctx.Context(), &req)
	if err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Collection opened", res))
}

func (c *sessionController) Reauthorize(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	res, err := svc.Reauthorize(ctx.Context())
	if err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Collection reauthorized", res))
}

func (c *sessionController) CancelReauthorization(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	res, err := svc.CancelReauthorization(ctx.Context())
	if err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Reauthorization cancelled", res))
}

func (c *sessionController) SwitchDocument(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	var req dto.SwitchDocumentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := svc.SwitchDocument(ctx.Context(), &req)
	if err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Document switched", res))
}

func (c *sessionController) Edit(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	var req dto.EditRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := svc.Edit(ctx.Context(), &req); err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Edit accepted", nil))
}

func (c *sessionController) InsertAsset(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	var req dto.InsertAssetRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := svc.InsertAsset(ctx.Context(), &req)
	if err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Asset insertion started", res))
}

func (c *sessionController) ListDocuments(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	paths, err := svc.ListDocuments(ctx.Context())
	if err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Documents", dto.DocumentListResponse{Paths: paths}))
}

func (c *sessionController) Flush(ctx *fiber.Ctx) error {
	svc, err := c.session(ctx)
	if err != nil {
		return err
	}

	if err := svc.Flush(ctx.Context()); err != nil {
		return mapSessionError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Flushed", nil))
}

func (c *sessionController) Close(ctx *fiber.Ctx) error {
	token := ctx.Get(clientTokenHeader)
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing "+clientTokenHeader+" header")
	}

	// Remove triggers the eviction hook, which flushes and disposes.
	c.sessions.Remove(token)

	return ctx.JSON(serverutils.SuccessResponse[any]("Session closed", nil))
}
