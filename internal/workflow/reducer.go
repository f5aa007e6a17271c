package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

// Change is one edit to the form. Reduce applies it without touching the input.
type Change interface {
	Section() int
	apply(p *domain.StudentProfile) error
}

type fieldDef struct {
	section int
	choices []string
	ref     func(p *domain.StudentProfile) *string
}

var fields = map[string]fieldDef{
	"surname":         {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.Surname }},
	"first_name":      {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.FirstName }},
	"middle_name":     {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.MiddleName }},
	"jamb_reg_number": {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.JambRegNumber }},
	"gender":          {section: domain.SectionPersonal, choices: domain.Genders, ref: func(p *domain.StudentProfile) *string { return &p.Gender }},
	"dob":             {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.DOB }},
	"place_of_birth":  {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.PlaceOfBirth }},
	"state_of_origin": {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.StateOfOrigin }},
	"lga":             {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.LGA }},
	"home_town":       {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.HomeTown }},
	"religion":        {section: domain.SectionPersonal, choices: domain.Religions, ref: func(p *domain.StudentProfile) *string { return &p.Religion }},
	"post_utme_phone": {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.PostUTMEPhone }},
	"jamb_email":      {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.JambEmail }},
	"contact_address": {section: domain.SectionPersonal, ref: func(p *domain.StudentProfile) *string { return &p.ContactAddress }},
	"marital_status":  {section: domain.SectionPersonal, choices: domain.MaritalStatuses, ref: func(p *domain.StudentProfile) *string { return &p.MaritalStatus }},

	"nok_name":         {section: domain.SectionNextOfKin, ref: func(p *domain.StudentProfile) *string { return &p.NokName }},
	"nok_address":      {section: domain.SectionNextOfKin, ref: func(p *domain.StudentProfile) *string { return &p.NokAddress }},
	"nok_phone":        {section: domain.SectionNextOfKin, ref: func(p *domain.StudentProfile) *string { return &p.NokPhone }},
	"nok_relationship": {section: domain.SectionNextOfKin, ref: func(p *domain.StudentProfile) *string { return &p.NokRelationship }},

	"father_name":    {section: domain.SectionBiodata, ref: func(p *domain.StudentProfile) *string { return &p.FatherName }},
	"father_phone":   {section: domain.SectionBiodata, ref: func(p *domain.StudentProfile) *string { return &p.FatherPhone }},
	"father_address": {section: domain.SectionBiodata, ref: func(p *domain.StudentProfile) *string { return &p.FatherAddress }},
	"mother_name":    {section: domain.SectionBiodata, ref: func(p *domain.StudentProfile) *string { return &p.MotherName }},
	"mother_phone":   {section: domain.SectionBiodata, ref: func(p *domain.StudentProfile) *string { return &p.MotherPhone }},
	"mother_address": {section: domain.SectionBiodata, ref: func(p *domain.StudentProfile) *string { return &p.MotherAddress }},

	"jamb_exam_centre": {section: domain.SectionJamb, ref: func(p *domain.StudentProfile) *string { return &p.JambExamCentre }},

	"primary_school_name":   {section: domain.SectionSchools, ref: func(p *domain.StudentProfile) *string { return &p.PrimarySchoolName }},
	"primary_entry_year":    {section: domain.SectionSchools, ref: func(p *domain.StudentProfile) *string { return &p.PrimaryEntryYear }},
	"primary_exit_year":     {section: domain.SectionSchools, ref: func(p *domain.StudentProfile) *string { return &p.PrimaryExitYear }},
	"secondary_school_name": {section: domain.SectionSchools, ref: func(p *domain.StudentProfile) *string { return &p.SecondarySchoolName }},
	"secondary_entry_year":  {section: domain.SectionSchools, ref: func(p *domain.StudentProfile) *string { return &p.SecondaryEntryYear }},
	"secondary_exit_year":   {section: domain.SectionSchools, ref: func(p *domain.StudentProfile) *string { return &p.SecondaryExitYear }},
}

// FieldSection reports the form section a plain field belongs to.
func FieldSection(name string) (int, bool) {
	fd, ok := fields[name]
	if !ok {
		return 0, false
	}
	return fd.section, true
}

// Reduce returns a copy of p with c applied.
func Reduce(p domain.StudentProfile, c Change) (domain.StudentProfile, error) {
	out := p.Clone()
	out.Normalize()
	if err := c.apply(&out); err != nil {
		return p, err
	}
	return out, nil
}

type SetField struct {
	Name  string
	Value string
}

func (c SetField) Section() int {
	if fd, ok := fields[c.Name]; ok {
		return fd.section
	}
	// unknown names still need a section; apply rejects them
	return domain.SectionPersonal
}

func (c SetField) apply(p *domain.StudentProfile) error {
	const op = "set field"
	switch c.Name {
	case "email":
		return validationError(op, "email cannot be changed", "email")
	case "id", "payment_status", "payment_reference", "paid_at", "submitted_at", "created_at", "updated_at":
		return validationError(op, "field is not editable", c.Name)
	}

	fd, ok := fields[c.Name]
	if !ok {
		return validationError(op, "unknown field", c.Name)
	}
	value := strings.TrimSpace(c.Value)
	if len(fd.choices) > 0 && value != "" && !slices.Contains(fd.choices, value) {
		return validationError(op, fmt.Sprintf("must be one of %s", strings.Join(fd.choices, ", ")), c.Name)
	}
	*fd.ref(p) = value
	return nil
}

type SetJambScore struct {
	Index   int
	Subject string
	Score   int
}

func (SetJambScore) Section() int { return domain.SectionJamb }

func (c SetJambScore) apply(p *domain.StudentProfile) error {
	const op = "set jamb score"
	field := fmt.Sprintf("jamb_score_details[%d]", c.Index)
	if c.Index < 0 || c.Index >= domain.JambSubjectCount {
		return validationError(op, "index out of range", field)
	}
	if c.Score < 0 || c.Score > 100 {
		return validationError(op, "score must be between 0 and 100", field)
	}
	subject := strings.TrimSpace(c.Subject)
	if c.Index == 0 {
		if subject != "" && subject != domain.FixedJambSubject {
			return validationError(op, domain.FixedJambSubject+" cannot be replaced", field)
		}
		subject = domain.FixedJambSubject
	}
	p.JambScoreDetails[c.Index] = domain.JambScore{Subject: subject, Score: c.Score}
	return nil
}

func sitting(p *domain.StudentProfile, n int, op string) (*domain.OLevelSitting, error) {
	switch n {
	case 1:
		return &p.OLevelSitting1, nil
	case 2:
		if !p.HasSecondSitting {
			return nil, validationError(op, "second sitting is not enabled", "olevel_sitting_2")
		}
		return p.OLevelSitting2, nil
	}
	return nil, validationError(op, "sitting must be 1 or 2", "sitting")
}

type SetOLevelMeta struct {
	Sitting int
	Field   string
	Value   string
}

func (SetOLevelMeta) Section() int { return domain.SectionOLevel }

func (c SetOLevelMeta) apply(p *domain.StudentProfile) error {
	const op = "set olevel details"
	s, err := sitting(p, c.Sitting, op)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(c.Value)
	name := fmt.Sprintf("olevel_sitting_%d.%s", c.Sitting, c.Field)

	switch c.Field {
	case "exam_name":
		if !slices.Contains(domain.ExamNames, value) {
			return validationError(op, "must be one of "+strings.Join(domain.ExamNames, ", "), name)
		}
		s.ExamName = value
	case "exam_number":
		s.ExamNumber = value
	case "exam_year":
		s.ExamYear = value
	case "exam_centre":
		s.ExamCentre = value
	default:
		return validationError(op, "unknown field", name)
	}
	return nil
}

type SetOLevelSubject struct {
	Sitting int
	Index   int
	Subject string
	Grade   string
}

func (SetOLevelSubject) Section() int { return domain.SectionOLevel }

func (c SetOLevelSubject) apply(p *domain.StudentProfile) error {
	const op = "set olevel subject"
	s, err := sitting(p, c.Sitting, op)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("olevel_sitting_%d.subjects[%d]", c.Sitting, c.Index)
	if c.Index < 0 || c.Index >= domain.OLevelSubjectCount {
		return validationError(op, "index out of range", name)
	}
	grade := strings.ToUpper(strings.TrimSpace(c.Grade))
	if grade != "" && !slices.Contains(domain.Grades, grade) {
		return validationError(op, "grade must be one of "+strings.Join(domain.Grades, " "), name)
	}
	s.Subjects[c.Index] = domain.OLevelSubject{Subject: strings.TrimSpace(c.Subject), Grade: grade}
	return nil
}

type SetSecondSitting struct {
	Enabled bool
}

func (SetSecondSitting) Section() int { return domain.SectionOLevel }

func (c SetSecondSitting) apply(p *domain.StudentProfile) error {
	p.HasSecondSitting = c.Enabled
	return nil
}
