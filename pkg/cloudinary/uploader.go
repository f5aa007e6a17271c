package cloudinary

import (
	"bytes"
	"context"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const uploadTimeout = 30 * time.Second

type CloudinaryUploader struct {
	cld *cld.Cloudinary
}

func NewCloudinaryUploader(cloud *cld.Cloudinary) *CloudinaryUploader {
	return &CloudinaryUploader{cld: cloud}
}

func boolPtr(b bool) *bool {
	return &b
}

// UploadBytes stores b under folder/filename and returns the secure URL.
// Re-uploading the same slot overwrites the previous file.
func (u *CloudinaryUploader) UploadBytes(
	ctx context.Context,
	folder string,
	filename string,
	b []byte,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	// ต้องส่งเป็น io.Reader ไม่ใช่ []byte ตรงๆ
	reader := bytes.NewReader(b)

	res, err := u.cld.Upload.Upload(
		ctx,
		reader,
		uploader.UploadParams{
			Folder:       folder,
			PublicID:     filename,
			ResourceType: "auto", // pdf + images
			Overwrite:    boolPtr(true),
			Invalidate:   boolPtr(true),
		},
	)
	if err != nil {
		return "", err
	}
	if res.Error.Message != "" {
		return "", &UploadError{Message: res.Error.Message}
	}

	return res.SecureURL, nil
}

type UploadError struct {
	Message string
}

func (e *UploadError) Error() string {
	return "cloudinary: " + e.Message
}
