package dto

import (
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

type ApplicantRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

type PaymentConfirmRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

// ChangeRequest is one form edit. Type selects which of the other fields are read.
type ChangeRequest struct {
	Type    string `json:"type" validate:"required,oneof=field jamb_score olevel_meta olevel_subject second_sitting"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Index   int    `json:"index,omitempty"`
	Sitting int    `json:"sitting,omitempty"`
	Subject string `json:"subject,omitempty"`
	Score   int    `json:"score,omitempty"`
	Grade   string `json:"grade,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

type ProfilePatchRequest struct {
	Changes []ChangeRequest `json:"changes" validate:"required,min=1,max=50,dive"`
}

type PaymentInfo struct {
	Reference        string    `json:"reference"`
	AmountMinorUnits int64     `json:"amount_minor_units"`
	Currency         string    `json:"currency"`
	Token            string    `json:"token,omitempty"`
	RedirectURL      string    `json:"redirect_url,omitempty"`
	OpenedAt         time.Time `json:"opened_at"`
}

type SessionResponse struct {
	SessionID    string                 `json:"session_id"`
	Stage        string                 `json:"stage"`
	Section      int                    `json:"section"`
	SectionTitle string                 `json:"section_title,omitempty"`
	Sections     []string               `json:"sections"`
	Profile      *domain.StudentProfile `json:"profile,omitempty"`
	Payment      *PaymentInfo           `json:"payment,omitempty"`
}

type InitiatePaymentResponse struct {
	SkippedPayment bool            `json:"skipped_payment"`
	Session        SessionResponse `json:"session"`
}

type DocumentUploadResponse struct {
	Slot    string          `json:"slot"`
	URL     string          `json:"url"`
	Session SessionResponse `json:"session"`
}

type PublicSettingsResponse struct {
	SessionYear        string `json:"session_year"`
	ClearanceFee       int64  `json:"clearance_fee"`
	Currency           string `json:"currency"`
	PaymentDeadline    string `json:"payment_deadline"`
	GatewayPublicKey   string `json:"gateway_public_key"`
	PaymentsEnabled    bool   `json:"payments_enabled"`
	SubmissionsEnabled bool   `json:"submissions_enabled"`
}
