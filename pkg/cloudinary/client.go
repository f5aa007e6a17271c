package cloudinary

import (
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
)

// New builds a client from the given CLOUDINARY_URL, or from the
// environment when url is empty.
func New(url string) (*cloudinary.Cloudinary, error) {
	if url = strings.TrimSpace(url); url != "" {
		return cloudinary.NewFromURL(url)
	}
	// cloudinary.New() จะอ่านจาก CLOUDINARY_URL ใน env เอง
	return cloudinary.New()
}
