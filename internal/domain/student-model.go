package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

const (
	JambSubjectCount   = 4
	OLevelSubjectCount = 9
	FixedJambSubject   = "Use of English"
)

type JambScore struct {
	Subject string `json:"subject"`
	Score   int    `json:"score"`
}

type OLevelSubject struct {
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
}

type OLevelSitting struct {
	ExamName   string          `json:"exam_name"`
	ExamNumber string          `json:"exam_number"`
	ExamYear   string          `json:"exam_year"`
	ExamCentre string          `json:"exam_centre"`
	Subjects   []OLevelSubject `json:"subjects"`
}

func NewOLevelSitting(examName string) OLevelSitting {
	return OLevelSitting{
		ExamName: examName,
		Subjects: make([]OLevelSubject, OLevelSubjectCount),
	}
}

func (s OLevelSitting) clone() OLevelSitting {
	out := s
	out.Subjects = append([]OLevelSubject(nil), s.Subjects...)
	return out
}

func (s *OLevelSitting) pad() {
	for len(s.Subjects) < OLevelSubjectCount {
		s.Subjects = append(s.Subjects, OLevelSubject{})
	}
	if len(s.Subjects) > OLevelSubjectCount {
		s.Subjects = s.Subjects[:OLevelSubjectCount]
	}
}

// StudentProfile is one applicant's clearance record, keyed by email.
type StudentProfile struct {
	ID               string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email            string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PaymentStatus    PaymentStatus `gorm:"type:varchar(20);not null;default:pending" json:"payment_status"`
	PaymentReference string        `gorm:"type:varchar(64);index" json:"payment_reference,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`

	// personal details
	Surname        string `json:"surname"`
	FirstName      string `json:"first_name"`
	MiddleName     string `json:"middle_name"`
	JambRegNumber  string `gorm:"index" json:"jamb_reg_number"`
	Gender         string `json:"gender"`
	DOB            string `json:"dob"`
	PlaceOfBirth   string `json:"place_of_birth"`
	StateOfOrigin  string `json:"state_of_origin"`
	LGA            string `json:"lga"`
	HomeTown       string `json:"home_town"`
	Religion       string `json:"religion"`
	PostUTMEPhone  string `json:"post_utme_phone"`
	JambEmail      string `json:"jamb_email"`
	ContactAddress string `json:"contact_address"`
	MaritalStatus  string `json:"marital_status"`

	// next of kin
	NokName         string `json:"nok_name"`
	NokAddress      string `json:"nok_address"`
	NokPhone        string `json:"nok_phone"`
	NokRelationship string `json:"nok_relationship"`

	// parents
	FatherName    string `json:"father_name"`
	FatherPhone   string `json:"father_phone"`
	FatherAddress string `json:"father_address"`
	MotherName    string `json:"mother_name"`
	MotherPhone   string `json:"mother_phone"`
	MotherAddress string `json:"mother_address"`

	// jamb
	JambExamCentre   string                         `json:"jamb_exam_centre"`
	JambScoreDetails datatypes.JSONSlice[JambScore] `gorm:"type:jsonb" json:"jamb_score_details"`

	// schools
	PrimarySchoolName   string `json:"primary_school_name"`
	PrimaryEntryYear    string `json:"primary_entry_year"`
	PrimaryExitYear     string `json:"primary_exit_year"`
	SecondarySchoolName string `json:"secondary_school_name"`
	SecondaryEntryYear  string `json:"secondary_entry_year"`
	SecondaryExitYear   string `json:"secondary_exit_year"`

	// o'level
	OLevelSitting1   OLevelSitting  `gorm:"serializer:json;type:jsonb" json:"olevel_sitting_1"`
	HasSecondSitting bool           `json:"has_second_sitting"`
	OLevelSitting2   *OLevelSitting `gorm:"serializer:json;type:jsonb" json:"olevel_sitting_2,omitempty"`

	// documents
	DocOLevelURL         string `json:"doc_olevel_url,omitempty"`
	DocAgeDeclarationURL string `json:"doc_age_declaration_url,omitempty"`
	DocLGAURL            string `json:"doc_lga_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStudentProfile builds the initial record for an applicant who just paid.
// name is split on single spaces: first token is the first name, second the surname.
func NewStudentProfile(id, name, email, phone string, now time.Time) StudentProfile {
	parts := strings.Split(strings.TrimSpace(name), " ")
	first := parts[0]
	surname := ""
	if len(parts) > 1 {
		surname = parts[1]
	}

	scores := make(datatypes.JSONSlice[JambScore], JambSubjectCount)
	scores[0] = JambScore{Subject: FixedJambSubject}

	second := NewOLevelSitting("NECO")

	return StudentProfile{
		ID:               id,
		Email:            email,
		PaymentStatus:    PaymentPending,
		FirstName:        first,
		Surname:          surname,
		PostUTMEPhone:    phone,
		MaritalStatus:    "Single",
		JambScoreDetails: scores,
		OLevelSitting1:   NewOLevelSitting("WAEC"),
		OLevelSitting2:   &second,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (p StudentProfile) IsPaid() bool {
	return p.PaymentStatus == PaymentPaid
}

func (p StudentProfile) IsSubmitted() bool {
	return p.SubmittedAt != nil
}

// Clone returns a deep copy; slices and pointers are not shared.
func (p StudentProfile) Clone() StudentProfile {
	out := p
	out.JambScoreDetails = append(datatypes.JSONSlice[JambScore](nil), p.JambScoreDetails...)
	out.OLevelSitting1 = p.OLevelSitting1.clone()
	if p.OLevelSitting2 != nil {
		s := p.OLevelSitting2.clone()
		out.OLevelSitting2 = &s
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		out.PaidAt = &t
	}
	if p.SubmittedAt != nil {
		t := *p.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}

// Merge overwrites p with incoming, keeping identity fields.
// A paid record never goes back to pending and a submission time is never cleared.
func (p StudentProfile) Merge(incoming StudentProfile) StudentProfile {
	out := incoming.Clone()
	out.ID = p.ID
	out.Email = p.Email
	out.CreatedAt = p.CreatedAt

	if p.IsPaid() && !out.IsPaid() {
		out.PaymentStatus = PaymentPaid
		out.PaymentReference = p.PaymentReference
		out.PaidAt = p.PaidAt
	}
	if out.SubmittedAt == nil && p.SubmittedAt != nil {
		t := *p.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}

func (p *StudentProfile) MarkPaid(reference string, at time.Time) {
	p.PaymentStatus = PaymentPaid
	p.PaymentReference = reference
	p.PaidAt = &at
	p.UpdatedAt = at
}

// Normalize restores list lengths and defaults that storage may have dropped.
func (p *StudentProfile) Normalize() {
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentPending
	}
	if p.MaritalStatus == "" {
		p.MaritalStatus = "Single"
	}
	for len(p.JambScoreDetails) < JambSubjectCount {
		p.JambScoreDetails = append(p.JambScoreDetails, JambScore{})
	}
	if len(p.JambScoreDetails) > JambSubjectCount {
		p.JambScoreDetails = p.JambScoreDetails[:JambSubjectCount]
	}
	p.JambScoreDetails[0].Subject = FixedJambSubject

	if p.OLevelSitting1.ExamName == "" {
		p.OLevelSitting1.ExamName = "WAEC"
	}
	p.OLevelSitting1.pad()
	if p.OLevelSitting2 == nil {
		s := NewOLevelSitting("NECO")
		p.OLevelSitting2 = &s
	}
	p.OLevelSitting2.pad()
}

// MissingDocuments lists the document slots that have no URL yet.
func (p StudentProfile) MissingDocuments() []DocumentSlot {
	var missing []DocumentSlot
	for _, slot := range DocumentSlots {
		if p.DocumentURL(slot) == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

func (p StudentProfile) DocumentURL(slot DocumentSlot) string {
	switch slot {
	case DocOLevel:
		return p.DocOLevelURL
	case DocAgeDeclaration:
		return p.DocAgeDeclarationURL
	case DocLGA:
		return p.DocLGAURL
	}
	return ""
}

func (p *StudentProfile) SetDocumentURL(slot DocumentSlot, url string) bool {
	switch slot {
	case DocOLevel:
		p.DocOLevelURL = url
	case DocAgeDeclaration:
		p.DocAgeDeclarationURL = url
	case DocLGA:
		p.DocLGAURL = url
	default:
		return false
	}
	return true
}

func (p StudentProfile) FullName() string {
	return strings.TrimSpace(strings.Join(strings.Fields(p.FirstName+" "+p.MiddleName+" "+p.Surname), " "))
}
