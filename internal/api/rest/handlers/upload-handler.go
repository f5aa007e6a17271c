package handlers

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
	pkgutils "github.com/SundayYogurt/clearance_service/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	maxDocumentSize = 2 * 1024 * 1024 // 2MB
	maxImageWidth   = 1600
	jpegQuality     = 85
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".pdf": true}

// POST /api/clearance/documents/:slot
// form-data: file=<pdf|image>
func (h *ClearanceHandler) UploadDocument(ctx *fiber.Ctx) error {
	slot, ok := domain.ParseDocumentSlot(ctx.Params("slot"))
	if !ok {
		return utils.ResponseError(ctx, fiber.StatusNotFound, "unknown document slot")
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "file is required")
	}

	// validate extension
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExt[ext] {
		return utils.ResponseErrorWith(ctx, fiber.StatusBadRequest, "only pdf/jpg/jpeg/png/webp allowed", fiber.Map{"slot": slot})
	}

	// validate size
	if file.Size > maxDocumentSize {
		return utils.ResponseErrorWith(ctx, fiber.StatusRequestEntityTooLarge, "file too large (max 2MB)", fiber.Map{"slot": slot})
	}

	f, err := file.Open()
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusInternalServerError, "cannot open uploaded file")
	}
	defer f.Close()

	raw, err := pkgutils.ReadAllLimit(f, maxDocumentSize)
	if errors.Is(err, pkgutils.ErrFileTooLarge) {
		return utils.ResponseErrorWith(ctx, fiber.StatusRequestEntityTooLarge, "file too large (max 2MB)", fiber.Map{"slot": slot})
	}
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, "cannot read uploaded file")
	}

	data, contentType, err := pkgutils.PrepareDocument(raw, maxImageWidth, jpegQuality)
	if err != nil {
		return utils.ResponseErrorWith(ctx, fiber.StatusUnsupportedMediaType, err.Error(), fiber.Map{"slot": slot})
	}

	id := sessionID(ctx)
	url, st, err := h.svc.UploadDocument(ctx.UserContext(), id, slot, workflow.Document{
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return utils.ResponseSuccess(ctx, fiber.StatusOK, dto.DocumentUploadResponse{
		Slot:    string(slot),
		URL:     url,
		Session: toSessionResponse(id, st),
	})
}
