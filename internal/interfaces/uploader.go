package interfaces

import "context"

// Uploader stores a document and returns its public URL. Uploading to the
// same folder and filename again replaces the earlier file.
type Uploader interface {
	UploadBytes(ctx context.Context, folder string, filename string, b []byte) (string, error)
}
