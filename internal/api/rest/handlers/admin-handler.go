package handlers

import (
	"errors"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/api/rest/middleware"
	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/helper"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type AdminHandler struct {
	svc          services.AdminService
	auth         helper.Auth
	validate     *validator.Validate
	secureCookie bool
}

func NewAdminHandler(svc services.AdminService, auth helper.Auth, validate *validator.Validate, secureCookie bool) *AdminHandler {
	return &AdminHandler{svc: svc, auth: auth, validate: validate, secureCookie: secureCookie}
}

func (h *AdminHandler) SetupRoutes(app *fiber.App) {
	admin := app.Group("/api/admin")

	// Auth
	admin.Post("/login", limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
		LimitReached: func(ctx *fiber.Ctx) error {
			return utils.ResponseError(ctx, fiber.StatusTooManyRequests, "too many login attempts, try again later")
		},
	}), h.Login)

	auth := middleware.AdminOnly(h.svc)
	admin.Post("/logout", auth, h.Logout)

	// Views
	admin.Get("/dashboard", auth, h.Dashboard)
	admin.Get("/students", auth, h.ListStudents)
	admin.Get("/students/:id", auth, h.GetStudent)
	admin.Get("/students/:id/export", auth, h.ExportStudent)
	admin.Get("/audit", auth, h.AuditTrail)

	// Settings
	admin.Get("/settings", auth, h.GetSettings)
	admin.Put("/settings", auth, h.UpdateSettings)
}

func (h *AdminHandler) Login(ctx *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "access key is required")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ResponseValidation(ctx, err)
	}

	res, err := h.svc.Login(ctx.UserContext(), req.AccessKey)
	if errors.Is(err, services.ErrInvalidAccessKey) {
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, "Invalid access key")
	}
	if err != nil {
		return respondError(ctx, err)
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     middleware.AdminCookie,
		Value:    res.Token,
		Path:     "/api/admin",
		Expires:  res.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return utils.ResponseSuccess(ctx, fiber.StatusOK, res)
}

func (h *AdminHandler) Logout(ctx *fiber.Ctx) error {
	session, err := h.auth.GetCurrentAdmin(ctx)
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, err.Error())
	}
	if err := h.svc.Logout(ctx.UserContext(), session); err != nil {
		return respondError(ctx, err)
	}
	ctx.Cookie(&fiber.Cookie{
		Name:     middleware.AdminCookie,
		Path:     "/api/admin",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
	})
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "logged out")
}

func (h *AdminHandler) Dashboard(ctx *fiber.Ctx) error {
	d, err := h.svc.Dashboard(ctx.UserContext())
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, d)
}

// GET /api/admin/students?search=
func (h *AdminHandler) ListStudents(ctx *fiber.Ctx) error {
	list, err := h.svc.ListStudents(ctx.UserContext(), ctx.Query("search"))
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, list)
}

func (h *AdminHandler) GetStudent(ctx *fiber.Ctx) error {
	p, err := h.svc.GetStudent(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, p)
}

// ExportStudent returns the record as plain "key: value" lines.
func (h *AdminHandler) ExportStudent(ctx *fiber.Ctx) error {
	out, err := h.svc.ExportStudent(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return respondError(ctx, err)
	}
	ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="student-`+ctx.Params("id")+`.txt"`)
	ctx.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return ctx.Status(fiber.StatusOK).SendString(out)
}

func (h *AdminHandler) AuditTrail(ctx *fiber.Ctx) error {
	logs, err := h.svc.AuditTrail(ctx.UserContext(), ctx.QueryInt("limit", 50))
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, logs)
}

func (h *AdminHandler) GetSettings(ctx *fiber.Ctx) error {
	s, err := h.svc.GetSettings(ctx.UserContext())
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, s)
}

func (h *AdminHandler) UpdateSettings(ctx *fiber.Ctx) error {
	var req dto.UpdateSettingsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "Please provide valid inputs")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ResponseValidation(ctx, err)
	}

	s, err := h.svc.UpdateSettings(ctx.UserContext(), req)
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, s)
}
