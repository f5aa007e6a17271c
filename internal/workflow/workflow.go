// Package workflow drives one applicant through clearance:
// landing, verification, payment, form filling and final submission.
//
// A Workflow owns a State and talks to its collaborators only through the
// ports in ports.go. It is not safe for concurrent use; callers serialize
// access per session.
package workflow

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/google/uuid"
)

const maxReference = 1_000_000_000

type Deps struct {
	Profiles ProfileStore
	Settings SettingsSource
	Gateway  PaymentGateway

	Now          func() time.Time
	NewReference func() (string, error)
	NewID        func() string
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewReference == nil {
		d.NewReference = RandomReference
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

type Workflow struct {
	deps  Deps
	state State
}

func New(deps Deps) *Workflow {
	return &Workflow{deps: deps.withDefaults(), state: NewState()}
}

// Resume continues a workflow from a previously saved state.
func Resume(deps Deps, st State) *Workflow {
	if st.Stage == "" {
		st.Stage = StageLanding
	}
	return &Workflow{deps: deps.withDefaults(), state: st.Clone()}
}

func (w *Workflow) State() State {
	return w.state.Clone()
}

// RandomReference returns a decimal string in [1, 1e9].
func RandomReference() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxReference))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1, 10), nil
}

func (w *Workflow) Start() error {
	if w.state.Stage != StageLanding {
		return transitionError("start", w.state.Stage)
	}
	w.state.Stage = StageVerification
	return nil
}

// Back returns from verification to the landing page.
func (w *Workflow) Back() error {
	if w.state.Stage != StageVerification {
		return transitionError("back", w.state.Stage)
	}
	w.state.Stage = StageLanding
	return nil
}

type Initiation struct {
	SkippedPayment bool
	Pending        *PendingPayment
}

// InitiatePayment checks the applicant and settings and opens the gateway.
// An applicant whose record is already paid skips straight to the form.
// On any error the state is left untouched.
func (w *Workflow) InitiatePayment(ctx context.Context, a Applicant) (*Initiation, error) {
	const op = "initiate payment"
	if w.state.Stage != StageVerification {
		return nil, transitionError(op, w.state.Stage)
	}

	a, err := normalizeApplicant(a)
	if err != nil {
		return nil, err
	}

	existing, err := w.deps.Profiles.FindByEmail(ctx, a.Email)
	switch {
	case err == nil && existing != nil && existing.IsPaid():
		p := existing.Clone()
		p.Normalize()
		w.state.Stage = StageFormFilling
		w.state.Section = domain.SectionPersonal
		w.state.Profile = &p
		w.state.Pending = nil
		w.state.AppliedReference = p.PaymentReference
		return &Initiation{SkippedPayment: true}, nil
	case err != nil && !errors.Is(err, domain.ErrProfileNotFound):
		return nil, &Error{Op: op, Kind: ErrPersistence, Message: "could not look up applicant", Err: err}
	}

	settings, err := w.deps.Settings.Get(ctx)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrConfiguration, Message: "settings unavailable", Err: err}
	}
	if !settings.PaymentsEnabled {
		return nil, configurationError(op, "payments are currently disabled")
	}
	if !settings.HasUsablePublicKey() {
		return nil, configurationError(op, "payment gateway key is not configured")
	}
	amount := settings.AmountMinorUnits()
	if amount <= 0 {
		return nil, configurationError(op, "clearance fee must be greater than zero")
	}
	if w.deps.Gateway == nil || !w.deps.Gateway.Available() {
		return nil, &Error{Op: op, Kind: ErrGatewayUnavailable, Message: "payment gateway is not reachable"}
	}
	if !w.deps.Gateway.Supports(settings.Currency) {
		return nil, configurationError(op, "the payment gateway cannot charge in "+settings.Currency)
	}

	ref, err := w.deps.NewReference()
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrGatewayUnavailable, Message: "could not generate reference", Err: err}
	}

	checkout, err := w.deps.Gateway.Open(ctx, PaymentRequest{
		PublicKey:        settings.GatewayPublicKey,
		Email:            a.Email,
		Name:             a.Name,
		Phone:            a.Phone,
		AmountMinorUnits: amount,
		Currency:         settings.Currency,
		Reference:        ref,
		Metadata: map[string]string{
			"payment_for": "A&U NG Clearance",
			"session":     settings.SessionYear,
		},
	})
	if errors.Is(err, ErrConfiguration) {
		return nil, err
	}
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrGatewayUnavailable, Message: "payment gateway could not be opened", Err: err}
	}

	pending := &PendingPayment{
		Reference:        ref,
		Applicant:        a,
		AmountMinorUnits: amount,
		Currency:         settings.Currency,
		OpenedAt:         w.deps.Now(),
	}
	if checkout != nil {
		if checkout.Reference != "" {
			pending.Reference = checkout.Reference
		}
		pending.Token = checkout.Token
		pending.RedirectURL = checkout.RedirectURL
	}

	w.state.Stage = StagePaymentPending
	w.state.Pending = pending
	w.state.Profile = nil
	pp := *pending
	return &Initiation{Pending: &pp}, nil
}

func normalizeApplicant(a Applicant) (Applicant, error) {
	const op = "initiate payment"
	a.Name = strings.Join(strings.Fields(a.Name), " ")
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Phone = strings.TrimSpace(a.Phone)

	var missing []string
	if a.Name == "" {
		missing = append(missing, "name")
	}
	if a.Email == "" {
		missing = append(missing, "email")
	}
	if a.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return a, validationError(op, "applicant details are required", missing...)
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return a, validationError(op, "email address is invalid", "email")
	}
	return a, nil
}

// PaymentSucceeded records a successful payment and opens the form.
// Repeating the success for a reference that was already applied is a no-op.
// If the record cannot be stored the state stays in payment_pending and the
// returned error carries the reference for reconciliation.
func (w *Workflow) PaymentSucceeded(ctx context.Context, reference string) error {
	const op = "payment succeeded"
	reference = strings.TrimSpace(reference)

	if w.state.Stage != StagePaymentPending {
		if reference != "" && reference == w.state.AppliedReference &&
			(w.state.Stage == StageFormFilling || w.state.Stage == StageSubmitted) {
			return nil
		}
		return transitionError(op, w.state.Stage)
	}

	pending := w.state.Pending
	if pending == nil {
		return transitionError(op, w.state.Stage)
	}
	if reference == "" {
		reference = pending.Reference
	}
	if reference != pending.Reference {
		return validationError(op, "reference does not match the pending payment", "reference")
	}

	now := w.deps.Now()
	var profile domain.StudentProfile

	existing, err := w.deps.Profiles.FindByEmail(ctx, pending.Applicant.Email)
	switch {
	case err == nil && existing != nil:
		profile = existing.Clone()
		profile.Normalize()
	case err == nil || errors.Is(err, domain.ErrProfileNotFound):
		profile = domain.NewStudentProfile(w.deps.NewID(), pending.Applicant.Name, pending.Applicant.Email, pending.Applicant.Phone, now)
	default:
		return &Error{Op: op, Kind: ErrPaymentNotRecorded, Reference: reference, Message: "payment received but the record could not be loaded", Err: err}
	}

	profile.MarkPaid(reference, now)
	if err := w.deps.Profiles.Upsert(ctx, &profile); err != nil {
		return &Error{Op: op, Kind: ErrPaymentNotRecorded, Reference: reference, Message: "payment received but the record could not be saved", Err: err}
	}

	w.state.Stage = StageFormFilling
	w.state.Section = domain.SectionPersonal
	w.state.Profile = &profile
	w.state.Pending = nil
	w.state.AppliedReference = reference
	return nil
}

// PaymentCancelled drops the pending payment; nothing is persisted.
func (w *Workflow) PaymentCancelled() error {
	if w.state.Stage != StagePaymentPending {
		return transitionError("payment cancelled", w.state.Stage)
	}
	w.state.Stage = StageVerification
	w.state.Pending = nil
	w.state.Profile = nil
	return nil
}

func (w *Workflow) Next() error {
	if w.state.Stage != StageFormFilling {
		return transitionError("next", w.state.Stage)
	}
	if w.state.Section < domain.LastSection {
		w.state.Section++
	}
	return nil
}

func (w *Workflow) Previous() error {
	if w.state.Stage != StageFormFilling {
		return transitionError("previous", w.state.Stage)
	}
	if w.state.Section > 0 {
		w.state.Section--
	}
	return nil
}

// Apply edits the in-memory profile. The change must belong to the section
// currently on screen.
func (w *Workflow) Apply(c Change) error {
	const op = "apply change"
	if w.state.Stage != StageFormFilling || w.state.Profile == nil {
		return transitionError(op, w.state.Stage)
	}
	if c == nil {
		return validationError(op, "empty change")
	}
	if s := c.Section(); s != w.state.Section {
		return validationError(op, "change belongs to section "+domain.Sections[s]+", current section is "+w.state.SectionTitle())
	}

	next, err := Reduce(*w.state.Profile, c)
	if err != nil {
		return err
	}
	w.state.Profile = &next
	return nil
}

func (w *Workflow) AttachDocument(slot domain.DocumentSlot, url string) error {
	const op = "attach document"
	if w.state.Stage != StageFormFilling || w.state.Profile == nil {
		return transitionError(op, w.state.Stage)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return validationError(op, "document url is empty", string(slot))
	}
	if !w.state.Profile.SetDocumentURL(slot, url) {
		return validationError(op, "unknown document slot", string(slot))
	}
	return nil
}

// Submit persists the finished form. It is only available on the last section
// and requires every document slot to be filled.
func (w *Workflow) Submit(ctx context.Context) error {
	const op = "submit"
	if w.state.Stage != StageFormFilling || w.state.Profile == nil {
		return transitionError(op, w.state.Stage)
	}
	if w.state.Section != domain.LastSection {
		return &Error{Op: op, Kind: ErrInvalidTransition, Message: "submit is only available on the " + domain.Sections[domain.LastSection] + " section"}
	}

	settings, err := w.deps.Settings.Get(ctx)
	if err != nil {
		return &Error{Op: op, Kind: ErrConfiguration, Message: "settings unavailable", Err: err}
	}
	if !settings.SubmissionsEnabled {
		return configurationError(op, "submissions are currently closed")
	}

	if missing := w.state.Profile.MissingDocuments(); len(missing) > 0 {
		fields := make([]string, 0, len(missing))
		for _, m := range missing {
			fields = append(fields, string(m))
		}
		return validationError(op, "all documents must be uploaded before submitting", fields...)
	}

	record := w.state.Profile.Clone()
	if !record.HasSecondSitting {
		record.OLevelSitting2 = nil
	}
	now := w.deps.Now()
	record.SubmittedAt = &now
	record.UpdatedAt = now

	if err := w.deps.Profiles.Upsert(ctx, &record); err != nil {
		return &Error{Op: op, Kind: ErrPersistence, Message: "could not save submission", Err: err}
	}

	w.state.Profile = &record
	w.state.Stage = StageSubmitted
	return nil
}
