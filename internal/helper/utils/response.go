package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func ResponseError(ctx *fiber.Ctx, status int, msg string) error {
	return ctx.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// ResponseErrorWith adds extra keys (fields, reference, slot) next to "error".
func ResponseErrorWith(ctx *fiber.Ctx, status int, msg string, extra fiber.Map) error {
	body := fiber.Map{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	return ctx.Status(status).JSON(body)
}

// create a generic response function for success
func ResponseSuccess(ctx *fiber.Ctx, status int, data interface{}) error {
	return ctx.Status(status).JSON(fiber.Map{"data": data})
}

// ResponseValidation reports validator errors as {"error": ..., "fields": {field: tag}}.
func ResponseValidation(ctx *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ResponseError(ctx, fiber.StatusBadRequest, err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return ResponseErrorWith(ctx, fiber.StatusBadRequest, "validation failed", fiber.Map{"fields": fields})
}
