package handlers

import (
	"errors"
	"log"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/services"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
	"github.com/gofiber/fiber/v2"
)

// respondError maps service and workflow errors onto HTTP statuses.
func respondError(ctx *fiber.Ctx, err error) error {
	if we, ok := workflow.AsError(err); ok {
		extra := fiber.Map{}
		if len(we.Fields) > 0 {
			extra["fields"] = we.Fields
		}
		if we.Slot != "" {
			extra["slot"] = we.Slot
		}

		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, workflow.ErrValidation):
			status = fiber.StatusBadRequest
		case errors.Is(err, workflow.ErrConfiguration), errors.Is(err, workflow.ErrInvalidTransition):
			status = fiber.StatusConflict
		case errors.Is(err, workflow.ErrGatewayUnavailable), errors.Is(err, workflow.ErrUpload):
			status = fiber.StatusBadGateway
		case errors.Is(err, workflow.ErrPaymentNotRecorded):
			// แจ้ง reference ให้ผู้สมัครเก็บไว้ติดต่อเจ้าหน้าที่
			extra["reference"] = we.Reference
		}
		if status >= fiber.StatusInternalServerError {
			log.Printf("[CLEARANCE] %v", err)
		}
		return utils.ResponseErrorWith(ctx, status, we.Message, extra)
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrReferenceNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		return utils.ResponseError(ctx, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrInvalidAccessKey):
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrSessionBusy),
		errors.Is(err, services.ErrSessionChanged):
		return utils.ResponseError(ctx, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidSettings):
		return utils.ResponseError(ctx, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSettingsNotInitialized):
		return utils.ResponseError(ctx, fiber.StatusConflict, err.Error())
	}

	log.Printf("[CLEARANCE] internal error: %v", err)
	return utils.ResponseError(ctx, fiber.StatusInternalServerError, "internal server error")
}
