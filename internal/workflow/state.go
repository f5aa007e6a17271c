package workflow

import (
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

type Stage string

const (
	StageLanding        Stage = "landing"
	StageVerification   Stage = "verification"
	StagePaymentPending Stage = "payment_pending"
	StageFormFilling    Stage = "form_filling"
	StageSubmitted      Stage = "submitted"
)

type Applicant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type PendingPayment struct {
	Reference        string    `json:"reference"`
	Applicant        Applicant `json:"applicant"`
	AmountMinorUnits int64     `json:"amount_minor_units"`
	Currency         string    `json:"currency"`
	Token            string    `json:"token,omitempty"`
	RedirectURL      string    `json:"redirect_url,omitempty"`
	OpenedAt         time.Time `json:"opened_at"`
}

// State is the serializable part of a workflow.
type State struct {
	Stage            Stage                  `json:"stage"`
	Section          int                    `json:"section"`
	Profile          *domain.StudentProfile `json:"profile,omitempty"`
	Pending          *PendingPayment        `json:"pending,omitempty"`
	AppliedReference string                 `json:"applied_reference,omitempty"`
}

func NewState() State {
	return State{Stage: StageLanding}
}

func (s State) Clone() State {
	out := s
	if s.Profile != nil {
		p := s.Profile.Clone()
		out.Profile = &p
	}
	if s.Pending != nil {
		pp := *s.Pending
		out.Pending = &pp
	}
	return out
}

func (s State) SectionTitle() string {
	if s.Section < 0 || s.Section >= len(domain.Sections) {
		return ""
	}
	return domain.Sections[s.Section]
}

func (s State) Terminal() bool {
	return s.Stage == StageSubmitted
}
