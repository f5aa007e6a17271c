package workflow

import (
	"context"
	"fmt"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
)

const documentFolder = "clearance"

type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadDocument stores doc for slot and returns its URL. The public id is
// stable per profile and slot, so a retry replaces the earlier attempt.
func UploadDocument(ctx context.Context, up interfaces.Uploader, profileID string, slot domain.DocumentSlot, doc Document) (string, error) {
	const op = "upload document"
	if _, ok := domain.ParseDocumentSlot(string(slot)); !ok {
		return "", validationError(op, "unknown document slot", string(slot))
	}
	if len(doc.Data) == 0 {
		return "", validationError(op, "file is empty", string(slot))
	}
	if up == nil {
		return "", &Error{Op: op, Kind: ErrUpload, Slot: slot, Message: "document storage is not configured"}
	}

	url, err := up.UploadBytes(ctx, documentFolder+"/"+string(slot), fmt.Sprintf("%s_%s", profileID, slot), doc.Data)
	if err != nil {
		return "", &Error{Op: op, Kind: ErrUpload, Slot: slot, Message: "upload failed, please try again", Err: err}
	}
	if url == "" {
		return "", &Error{Op: op, Kind: ErrUpload, Slot: slot, Message: "storage returned no url"}
	}
	return url, nil
}
