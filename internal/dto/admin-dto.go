package dto

import (
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

type AdminLoginRequest struct {
	AccessKey string `json:"access_key" validate:"required,max=200"`
}

type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type StudentSummary struct {
	ID            string               `json:"id"`
	Surname       string               `json:"surname"`
	FirstName     string               `json:"first_name"`
	Email         string               `json:"email"`
	JambRegNumber string               `json:"jamb_reg_number"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Submitted     bool                 `json:"submitted"`
	CreatedAt     time.Time            `json:"created_at"`
}

func NewStudentSummary(p domain.StudentProfile) StudentSummary {
	return StudentSummary{
		ID:            p.ID,
		Surname:       p.Surname,
		FirstName:     p.FirstName,
		Email:         p.Email,
		JambRegNumber: p.JambRegNumber,
		PaymentStatus: p.PaymentStatus,
		Submitted:     p.IsSubmitted(),
		CreatedAt:     p.CreatedAt,
	}
}

type DashboardResponse struct {
	SessionYear       string           `json:"session_year"`
	TotalStudents     int              `json:"total_students"`
	PaidStudents      int              `json:"paid_students"`
	SubmittedStudents int              `json:"submitted_students"`
	Revenue           int64            `json:"revenue"`
	Currency          string           `json:"currency"`
	Recent            []StudentSummary `json:"recent"`
}

type StudentListResponse struct {
	Total    int              `json:"total"`
	Students []StudentSummary `json:"students"`
}

// UpdateSettingsRequest replaces every editable setting.
type UpdateSettingsRequest struct {
	SessionYear        string `json:"session_year" validate:"required,len=9"`
	ClearanceFee       int64  `json:"clearance_fee" validate:"required,gt=0"`
	Currency           string `json:"currency" validate:"omitempty,len=3,uppercase"`
	PaymentDeadline    string `json:"payment_deadline" validate:"required,datetime=2006-01-02"`
	GatewayPublicKey   string `json:"gateway_public_key" validate:"max=255"`
	PaymentsEnabled    bool   `json:"payments_enabled"`
	SubmissionsEnabled bool   `json:"submissions_enabled"`
}
