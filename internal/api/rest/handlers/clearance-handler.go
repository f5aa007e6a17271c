package handlers

import (
	"strings"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/services"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const (
	SessionCookie = "clearance_session"
	SessionHeader = "X-Clearance-Session"
)

type ClearanceHandler struct {
	svc          services.ClearanceService
	validate     *validator.Validate
	sessionTTL   time.Duration
	secureCookie bool
}

func NewClearanceHandler(svc services.ClearanceService, validate *validator.Validate, sessionTTL time.Duration, secureCookie bool) *ClearanceHandler {
	return &ClearanceHandler{svc: svc, validate: validate, sessionTTL: sessionTTL, secureCookie: secureCookie}
}

func (h *ClearanceHandler) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// =========================
	// CLEARANCE
	// =========================
	c := api.Group("/clearance")

	c.Get("/settings", h.PublicSettings)

	// Session
	c.Post("/session", h.OpenSession)
	c.Get("/session", h.GetSession)
	c.Post("/start", h.Start)
	c.Post("/back", h.Back)

	// Payment
	c.Post("/payment", h.InitiatePayment)
	c.Post("/payment/success", h.ConfirmPayment)
	c.Post("/payment/cancel", h.CancelPayment)

	// Form
	c.Patch("/profile", h.ApplyChanges)
	c.Post("/next", h.Next)
	c.Post("/previous", h.Previous)
	c.Post("/documents/:slot", h.UploadDocument)
	c.Post("/submit", h.Submit)
}

func sessionID(ctx *fiber.Ctx) string {
	if id := strings.TrimSpace(ctx.Cookies(SessionCookie)); id != "" {
		return id
	}
	return strings.TrimSpace(ctx.Get(SessionHeader))
}

func toSessionResponse(id string, st workflow.State) dto.SessionResponse {
	out := dto.SessionResponse{
		SessionID: id,
		Stage:     string(st.Stage),
		Section:   st.Section,
		Sections:  domain.Sections,
		Profile:   st.Profile,
	}
	if st.Stage == workflow.StageFormFilling || st.Stage == workflow.StageSubmitted {
		out.SectionTitle = st.SectionTitle()
	}
	if p := st.Pending; p != nil {
		out.Payment = &dto.PaymentInfo{
			Reference:        p.Reference,
			AmountMinorUnits: p.AmountMinorUnits,
			Currency:         p.Currency,
			Token:            p.Token,
			RedirectURL:      p.RedirectURL,
			OpenedAt:         p.OpenedAt,
		}
	}
	return out
}

func (h *ClearanceHandler) PublicSettings(ctx *fiber.Ctx) error {
	s, err := h.svc.PublicSettings(ctx.UserContext())
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, dto.PublicSettingsResponse{
		SessionYear:        s.SessionYear,
		ClearanceFee:       s.ClearanceFee,
		Currency:           s.Currency,
		PaymentDeadline:    s.PaymentDeadline,
		GatewayPublicKey:   s.GatewayPublicKey,
		PaymentsEnabled:    s.PaymentsEnabled,
		SubmissionsEnabled: s.SubmissionsEnabled,
	})
}

func (h *ClearanceHandler) OpenSession(ctx *fiber.Ctx) error {
	id, st, err := h.svc.OpenSession(ctx.UserContext())
	if err != nil {
		return respondError(ctx, err)
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(h.sessionTTL),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return utils.ResponseSuccess(ctx, fiber.StatusCreated, toSessionResponse(id, st))
}

func (h *ClearanceHandler) GetSession(ctx *fiber.Ctx) error {
	id := sessionID(ctx)
	st, err := h.svc.GetState(ctx.UserContext(), id)
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, toSessionResponse(id, st))
}

// transition runs a body-less step and answers with the new state.
func (h *ClearanceHandler) transition(ctx *fiber.Ctx, fn func(id string) (workflow.State, error)) error {
	id := sessionID(ctx)
	st, err := fn(id)
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, toSessionResponse(id, st))
}

func (h *ClearanceHandler) Start(ctx *fiber.Ctx) error {
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.Start(ctx.UserContext(), id)
	})
}

func (h *ClearanceHandler) Back(ctx *fiber.Ctx) error {
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.Back(ctx.UserContext(), id)
	})
}

func (h *ClearanceHandler) InitiatePayment(ctx *fiber.Ctx) error {
	var req dto.ApplicantRequest
	if err := ctx.BodyParser(&req); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "Please provide valid inputs")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ResponseValidation(ctx, err)
	}

	id := sessionID(ctx)
	init, st, err := h.svc.InitiatePayment(ctx.UserContext(), id, workflow.Applicant{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, dto.InitiatePaymentResponse{
		SkippedPayment: init.SkippedPayment,
		Session:        toSessionResponse(id, st),
	})
}

func (h *ClearanceHandler) ConfirmPayment(ctx *fiber.Ctx) error {
	var req dto.PaymentConfirmRequest
	if err := ctx.BodyParser(&req); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "reference is required")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ResponseValidation(ctx, err)
	}
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.ConfirmPayment(ctx.UserContext(), id, req.Reference)
	})
}

func (h *ClearanceHandler) CancelPayment(ctx *fiber.Ctx) error {
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.CancelPayment(ctx.UserContext(), id)
	})
}

func (h *ClearanceHandler) ApplyChanges(ctx *fiber.Ctx) error {
	var req dto.ProfilePatchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "Please provide valid inputs")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ResponseValidation(ctx, err)
	}

	changes := make([]workflow.Change, 0, len(req.Changes))
	for _, c := range req.Changes {
		changes = append(changes, toChange(c))
	}
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.ApplyChanges(ctx.UserContext(), id, changes)
	})
}

func toChange(c dto.ChangeRequest) workflow.Change {
	switch c.Type {
	case "jamb_score":
		return workflow.SetJambScore{Index: c.Index, Subject: c.Subject, Score: c.Score}
	case "olevel_meta":
		return workflow.SetOLevelMeta{Sitting: c.Sitting, Field: c.Field, Value: c.Value}
	case "olevel_subject":
		return workflow.SetOLevelSubject{Sitting: c.Sitting, Index: c.Index, Subject: c.Subject, Grade: c.Grade}
	case "second_sitting":
		return workflow.SetSecondSitting{Enabled: c.Enabled}
	default:
		return workflow.SetField{Name: c.Field, Value: c.Value}
	}
}

func (h *ClearanceHandler) Next(ctx *fiber.Ctx) error {
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.Next(ctx.UserContext(), id)
	})
}

func (h *ClearanceHandler) Previous(ctx *fiber.Ctx) error {
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.Previous(ctx.UserContext(), id)
	})
}

func (h *ClearanceHandler) Submit(ctx *fiber.Ctx) error {
	return h.transition(ctx, func(id string) (workflow.State, error) {
		return h.svc.Submit(ctx.UserContext(), id)
	})
}
