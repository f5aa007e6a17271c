package workflow

import (
	"context"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

// ProfileStore is the part of the profile repository the workflow needs.
type ProfileStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.StudentProfile, error)
	Upsert(ctx context.Context, profile *domain.StudentProfile) error
}

type SettingsSource interface {
	Get(ctx context.Context) (*domain.SystemSettings, error)
}

type PaymentRequest struct {
	PublicKey        string
	Email            string
	Name             string
	Phone            string
	AmountMinorUnits int64
	Currency         string
	Reference        string
	Metadata         map[string]string
}

// Checkout is what the gateway hands back when a payment is opened.
type Checkout struct {
	Reference   string
	Token       string
	RedirectURL string
}

type PaymentGateway interface {
	Available() bool
	// Supports reports whether the gateway can charge in currency (ISO 4217).
	Supports(currency string) bool
	Open(ctx context.Context, req PaymentRequest) (*Checkout, error)
	Verify(ctx context.Context, reference string) (bool, error)
}
