package handlers

import (
	"errors"
	"log"

	"github.com/SundayYogurt/clearance_service/internal/clients/payment"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/services"
	"github.com/gofiber/fiber/v2"
)

type NotificationParser interface {
	ParseNotification(body []byte) (*payment.Notification, error)
}

type WebhookHandler struct {
	svc    services.ClearanceService
	parser NotificationParser
}

func NewWebhookHandler(svc services.ClearanceService, parser NotificationParser) *WebhookHandler {
	return &WebhookHandler{svc: svc, parser: parser}
}

func (h *WebhookHandler) SetupRoutes(app *fiber.App) {
	app.Post("/api/webhooks/payment", h.PaymentNotification)
}

// PaymentNotification receives gateway status changes. Anything that is not
// a signed success or cancel is acknowledged and dropped so the gateway stops
// retrying.
func (h *WebhookHandler) PaymentNotification(ctx *fiber.Ctx) error {
	n, err := h.parser.ParseNotification(ctx.Body())
	if errors.Is(err, payment.ErrInvalidSignature) {
		log.Println("[CLEARANCE] webhook rejected: invalid signature")
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, "invalid signature")
	}
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, err.Error())
	}

	switch n.Outcome() {
	case payment.OutcomeSuccess:
		err = h.svc.HandleGatewayOutcome(ctx.UserContext(), n.OrderID, true)
	case payment.OutcomeCancel:
		err = h.svc.HandleGatewayOutcome(ctx.UserContext(), n.OrderID, false)
	default:
		log.Printf("[CLEARANCE] webhook ignored: ref=%s status=%s", n.OrderID, n.TransactionStatus)
	}
	if err != nil {
		// 5xx ให้ gateway ส่งซ้ำ
		return respondError(ctx, err)
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "ok")
}
