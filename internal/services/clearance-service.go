package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/SundayYogurt/clearance_service/internal/repository"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
	"github.com/google/uuid"
)

type ClearanceService interface {
	// Session
	OpenSession(ctx context.Context) (string, workflow.State, error)
	GetState(ctx context.Context, sessionID string) (workflow.State, error)
	Start(ctx context.Context, sessionID string) (workflow.State, error)
	Back(ctx context.Context, sessionID string) (workflow.State, error)

	// Payment
	InitiatePayment(ctx context.Context, sessionID string, a workflow.Applicant) (*workflow.Initiation, workflow.State, error)
	ConfirmPayment(ctx context.Context, sessionID, reference string) (workflow.State, error)
	CancelPayment(ctx context.Context, sessionID string) (workflow.State, error)
	HandleGatewayOutcome(ctx context.Context, reference string, paid bool) error

	// Form
	ApplyChanges(ctx context.Context, sessionID string, changes []workflow.Change) (workflow.State, error)
	Next(ctx context.Context, sessionID string) (workflow.State, error)
	Previous(ctx context.Context, sessionID string) (workflow.State, error)
	UploadDocument(ctx context.Context, sessionID string, slot domain.DocumentSlot, doc workflow.Document) (string, workflow.State, error)
	Submit(ctx context.Context, sessionID string) (workflow.State, error)

	PublicSettings(ctx context.Context) (*domain.SystemSettings, error)
}

type clearanceService struct {
	sessions *SessionStore
	deps     workflow.Deps

	studentRepo  repository.StudentProfileRepository
	settingsRepo repository.SettingsRepository
	auditRepo    repository.AuditRepository
	gateway      workflow.PaymentGateway
	uploader     interfaces.Uploader

	// messaging
	producer interfaces.ProducerHandler
}

func NewClearanceService(
	sessions *SessionStore,
	studentRepo repository.StudentProfileRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	gateway workflow.PaymentGateway,
	uploader interfaces.Uploader,
	producer interfaces.ProducerHandler,
) ClearanceService {
	return &clearanceService{
		sessions:     sessions,
		studentRepo:  studentRepo,
		settingsRepo: settingsRepo,
		auditRepo:    auditRepo,
		gateway:      gateway,
		uploader:     uploader,
		producer:     producer,
		deps: workflow.Deps{
			Profiles: studentRepo,
			Settings: settingsRepo,
			Gateway:  gateway,
		},
	}
}

// mutate runs a transition that needs no I/O inside an atomic session update.
func (s *clearanceService) mutate(ctx context.Context, sessionID string, fn func(w *workflow.Workflow) error) (workflow.State, error) {
	return s.sessions.Mutate(ctx, sessionID, func(st *workflow.State) error {
		w := workflow.Resume(s.deps, *st)
		if err := fn(w); err != nil {
			return err
		}
		*st = w.State()
		return nil
	})
}

func (s *clearanceService) OpenSession(ctx context.Context) (string, workflow.State, error) {
	return s.sessions.Create(ctx)
}

func (s *clearanceService) GetState(ctx context.Context, sessionID string) (workflow.State, error) {
	return s.sessions.Load(ctx, sessionID)
}

func (s *clearanceService) Start(ctx context.Context, sessionID string) (workflow.State, error) {
	return s.mutate(ctx, sessionID, func(w *workflow.Workflow) error { return w.Start() })
}

func (s *clearanceService) Back(ctx context.Context, sessionID string) (workflow.State, error) {
	return s.mutate(ctx, sessionID, func(w *workflow.Workflow) error { return w.Back() })
}

func (s *clearanceService) InitiatePayment(ctx context.Context, sessionID string, a workflow.Applicant) (*workflow.Initiation, workflow.State, error) {
	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		return nil, workflow.State{}, err
	}
	defer unlock()

	snap, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, workflow.State{}, err
	}

	w := workflow.Resume(s.deps, snap.State)
	started, err := w.InitiatePayment(ctx, a)
	if err != nil {
		return nil, snap.State, err
	}

	if started.Pending != nil {
		// an unbound reference could not be matched to the applicant if the webhook arrives late
		if err := s.sessions.BindReference(ctx, sessionID, *started.Pending); err != nil {
			log.Printf("[CLEARANCE] bind reference error: ref=%s err=%v", started.Pending.Reference, err)
			return nil, snap.State, err
		}
		log.Printf("[CLEARANCE] payment opened: ref=%s amount=%d", started.Pending.Reference, started.Pending.AmountMinorUnits)
	}

	next := w.State()
	if err := s.sessions.Commit(ctx, sessionID, snap, next); err != nil {
		return nil, snap.State, err
	}
	return started, next, nil
}

// ConfirmPayment handles the browser's success callback. The reference is
// checked with the gateway before the payment is recorded.
func (s *clearanceService) ConfirmPayment(ctx context.Context, sessionID, reference string) (workflow.State, error) {
	const op = "confirm payment"
	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		return workflow.State{}, err
	}
	defer unlock()

	snap, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return workflow.State{}, err
	}
	st := snap.State

	reference = strings.TrimSpace(reference)
	if reference == "" && st.Pending != nil {
		reference = st.Pending.Reference
	}
	if reference == "" {
		return st, &workflow.Error{Op: op, Kind: workflow.ErrValidation, Message: "payment reference is required", Fields: []string{"reference"}}
	}
	if alreadyApplied(st, reference) {
		return st, nil
	}

	// a reference this session opened earlier may still be paid after a cancel or a newer attempt
	var binding *PaymentBinding
	if !pendingOn(st, reference) {
		binding, err = s.sessions.ResolveReference(ctx, reference)
		if err != nil && !errors.Is(err, ErrReferenceNotFound) {
			return st, err
		}
		if binding == nil || binding.SessionID != sessionID {
			if st.Stage == workflow.StagePaymentPending {
				return st, &workflow.Error{Op: op, Kind: workflow.ErrValidation, Reference: reference, Message: "reference does not match the pending payment", Fields: []string{"reference"}}
			}
			return st, &workflow.Error{Op: op, Kind: workflow.ErrInvalidTransition, Reference: reference, Message: "no payment with this reference was opened in this session"}
		}
	}

	if s.gateway == nil || !s.gateway.Available() {
		return st, &workflow.Error{Op: op, Kind: workflow.ErrGatewayUnavailable, Reference: reference, Message: "payment gateway is not reachable"}
	}
	paid, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return st, &workflow.Error{Op: op, Kind: workflow.ErrGatewayUnavailable, Reference: reference, Message: "could not verify payment", Err: err}
	}
	if !paid {
		return st, &workflow.Error{Op: op, Kind: workflow.ErrValidation, Reference: reference, Message: "payment has not been completed", Fields: []string{"reference"}}
	}

	return s.settle(ctx, sessionID, snap, reference, binding)
}

func pendingOn(st workflow.State, reference string) bool {
	return st.Stage == workflow.StagePaymentPending && st.Pending != nil && st.Pending.Reference == reference
}

func alreadyApplied(st workflow.State, reference string) bool {
	return reference != "" && reference == st.AppliedReference &&
		(st.Stage == workflow.StageFormFilling || st.Stage == workflow.StageSubmitted)
}

// settle records a verified payment. The caller holds the session lock.
// A payment the session is still waiting for moves it into the form; any
// other bound payment is stored against the applicant's email.
func (s *clearanceService) settle(ctx context.Context, sessionID string, snap Snapshot, reference string, binding *PaymentBinding) (workflow.State, error) {
	st := snap.State
	switch {
	case pendingOn(st, reference):
		return s.recordPending(ctx, sessionID, snap, reference)
	case alreadyApplied(st, reference):
		return st, nil
	case binding != nil:
		return st, s.recordDetached(ctx, reference, *binding)
	}
	return st, &workflow.Error{Op: "payment succeeded", Kind: workflow.ErrInvalidTransition, Reference: reference, Message: "no payment is pending"}
}

func (s *clearanceService) recordPending(ctx context.Context, sessionID string, snap Snapshot, reference string) (workflow.State, error) {
	st := snap.State
	pending := *st.Pending
	seen := s.recordedBefore(ctx, pending.Applicant.Email, reference)

	w := workflow.Resume(s.deps, st)
	if err := w.PaymentSucceeded(ctx, reference); err != nil {
		if errors.Is(err, workflow.ErrPaymentNotRecorded) {
			s.announceUnrecorded(ctx, reference, pending.Applicant, pending.AmountMinorUnits, pending.Currency, err)
		}
		return st, err
	}

	next := w.State()
	if !seen {
		s.announcePaid(ctx, next.Profile, reference, pending.AmountMinorUnits, pending.Currency)
	}
	if err := s.sessions.Commit(ctx, sessionID, snap, next); err != nil {
		// the payment is stored; the next InitiatePayment for this email skips straight to the form
		log.Printf("[CLEARANCE] save session error after payment: ref=%s err=%v", reference, err)
		return st, err
	}
	return next, nil
}

// recordDetached stores a verified payment whose session is no longer
// waiting for it: cancelled in the browser, replaced by a newer attempt, or
// expired. The session itself is left alone.
func (s *clearanceService) recordDetached(ctx context.Context, reference string, b PaymentBinding) error {
	const op = "record payment"
	a := b.Applicant
	now := time.Now()

	var profile domain.StudentProfile
	existing, err := s.studentRepo.FindByEmail(ctx, a.Email)
	switch {
	case err == nil && existing != nil:
		if existing.IsPaid() {
			if existing.PaymentReference != reference {
				// จ่ายซ้ำ เก็บ reference แรกไว้ ให้เจ้าหน้าที่คืนเงิน
				log.Printf("[CLEARANCE] duplicate payment: ref=%s kept=%s email=%s", reference, existing.PaymentReference, a.Email)
				s.audit(ctx, a.Email, domain.AuditPaymentDuplicate, existing.ID, reference, "already paid with "+existing.PaymentReference)
			}
			return nil
		}
		profile = existing.Clone()
		profile.Normalize()
	case err == nil || errors.Is(err, domain.ErrProfileNotFound):
		profile = domain.NewStudentProfile(uuid.NewString(), a.Name, a.Email, a.Phone, now)
	default:
		werr := &workflow.Error{Op: op, Kind: workflow.ErrPaymentNotRecorded, Reference: reference, Message: "payment received but the record could not be loaded", Err: err}
		s.announceUnrecorded(ctx, reference, a, b.AmountMinorUnits, b.Currency, werr)
		return werr
	}

	profile.MarkPaid(reference, now)
	if err := s.studentRepo.Upsert(ctx, &profile); err != nil {
		werr := &workflow.Error{Op: op, Kind: workflow.ErrPaymentNotRecorded, Reference: reference, Message: "payment received but the record could not be saved", Err: err}
		s.announceUnrecorded(ctx, reference, a, b.AmountMinorUnits, b.Currency, werr)
		return werr
	}
	log.Printf("[CLEARANCE] late payment recorded: ref=%s session=%s", reference, b.SessionID)
	s.announcePaid(ctx, &profile, reference, b.AmountMinorUnits, b.Currency)
	return nil
}

func (s *clearanceService) recordedBefore(ctx context.Context, email, reference string) bool {
	p, err := s.studentRepo.FindByEmail(ctx, email)
	return err == nil && p != nil && p.IsPaid() && p.PaymentReference == reference
}

func (s *clearanceService) announcePaid(ctx context.Context, p *domain.StudentProfile, reference string, amount int64, currency string) {
	if p == nil {
		return
	}
	s.audit(ctx, p.Email, domain.AuditPaymentConfirmed, p.ID, reference, "")
	s.publish(ctx, dto.ClearanceEvent{
		Type:             dto.EventPaymentConfirmed,
		ProfileID:        p.ID,
		Email:            p.Email,
		Name:             p.FullName(),
		Reference:        reference,
		AmountMinorUnits: amount,
		Currency:         currency,
	})
}

func (s *clearanceService) announceUnrecorded(ctx context.Context, reference string, a workflow.Applicant, amount int64, currency string, cause error) {
	log.Printf("[CLEARANCE] CRITICAL payment not recorded: ref=%s email=%s err=%v", reference, a.Email, cause)
	s.audit(ctx, a.Email, domain.AuditPaymentUnrecorded, "", reference, cause.Error())
	s.publish(ctx, dto.ClearanceEvent{
		Type:             dto.EventPaymentUnrecorded,
		Email:            a.Email,
		Name:             a.Name,
		Reference:        reference,
		AmountMinorUnits: amount,
		Currency:         currency,
		Reason:           cause.Error(),
	})
}

func (s *clearanceService) CancelPayment(ctx context.Context, sessionID string) (workflow.State, error) {
	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		return workflow.State{}, err
	}
	defer unlock()
	return s.mutate(ctx, sessionID, func(w *workflow.Workflow) error { return w.PaymentCancelled() })
}

// HandleGatewayOutcome applies a verified gateway notification. A success is
// always recorded, even when the session moved on or expired; a success for
// a reference nobody opened is surfaced as unrecorded. A cancel only affects
// a session still waiting on that reference.
func (s *clearanceService) HandleGatewayOutcome(ctx context.Context, reference string, paid bool) error {
	binding, err := s.sessions.ResolveReference(ctx, reference)
	if errors.Is(err, ErrReferenceNotFound) {
		if !paid {
			log.Printf("[CLEARANCE] webhook cancel for unknown reference=%s ignored", reference)
			return nil
		}
		werr := &workflow.Error{Op: "gateway outcome", Kind: workflow.ErrPaymentNotRecorded, Reference: reference, Message: "payment received for an unknown reference"}
		s.announceUnrecorded(ctx, reference, workflow.Applicant{}, 0, "", werr)
		return werr
	}
	if err != nil {
		return err
	}

	unlock, err := s.sessions.Lock(ctx, binding.SessionID)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := s.sessions.Snapshot(ctx, binding.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		if !paid {
			return nil
		}
		return s.recordDetached(ctx, reference, *binding)
	}
	if err != nil {
		return err
	}

	if !paid {
		if !pendingOn(snap.State, reference) {
			return nil
		}
		w := workflow.Resume(s.deps, snap.State)
		if err := w.PaymentCancelled(); err != nil {
			return err
		}
		return s.sessions.Commit(ctx, binding.SessionID, snap, w.State())
	}

	_, err = s.settle(ctx, binding.SessionID, snap, reference, binding)
	return err
}

func (s *clearanceService) ApplyChanges(ctx context.Context, sessionID string, changes []workflow.Change) (workflow.State, error) {
	return s.mutate(ctx, sessionID, func(w *workflow.Workflow) error {
		for _, c := range changes {
			if err := w.Apply(c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *clearanceService) Next(ctx context.Context, sessionID string) (workflow.State, error) {
	return s.mutate(ctx, sessionID, func(w *workflow.Workflow) error { return w.Next() })
}

func (s *clearanceService) Previous(ctx context.Context, sessionID string) (workflow.State, error) {
	return s.mutate(ctx, sessionID, func(w *workflow.Workflow) error { return w.Previous() })
}

// UploadDocument uploads outside the session lock, then attaches the URL.
// Uploads to different slots of one session can run concurrently.
func (s *clearanceService) UploadDocument(ctx context.Context, sessionID string, slot domain.DocumentSlot, doc workflow.Document) (string, workflow.State, error) {
	st, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return "", workflow.State{}, err
	}
	if st.Stage != workflow.StageFormFilling || st.Profile == nil {
		return "", st, &workflow.Error{Op: "upload document", Kind: workflow.ErrInvalidTransition, Slot: slot, Message: "documents can only be uploaded while filling the form"}
	}

	url, err := workflow.UploadDocument(ctx, s.uploader, st.Profile.ID, slot, doc)
	if err != nil {
		log.Printf("[CLEARANCE] upload failed: slot=%s err=%v", slot, err)
		return "", st, err
	}

	next, err := s.mutate(ctx, sessionID, func(w *workflow.Workflow) error {
		return w.AttachDocument(slot, url)
	})
	if err != nil {
		return "", st, err
	}
	return url, next, nil
}

func (s *clearanceService) Submit(ctx context.Context, sessionID string) (workflow.State, error) {
	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		return workflow.State{}, err
	}
	defer unlock()

	snap, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return workflow.State{}, err
	}

	w := workflow.Resume(s.deps, snap.State)
	if err := w.Submit(ctx); err != nil {
		return snap.State, err
	}

	next := w.State()
	if err := s.sessions.Commit(ctx, sessionID, snap, next); err != nil {
		log.Printf("[CLEARANCE] save session error after submit: err=%v", err)
		return snap.State, err
	}

	p := next.Profile
	s.audit(ctx, p.Email, domain.AuditSubmitted, p.ID, p.PaymentReference, "")
	s.publish(ctx, dto.ClearanceEvent{
		Type:      dto.EventSubmitted,
		ProfileID: p.ID,
		Email:     p.Email,
		Name:      p.FullName(),
		Reference: p.PaymentReference,
	})
	return next, nil
}

func (s *clearanceService) PublicSettings(ctx context.Context) (*domain.SystemSettings, error) {
	return s.settingsRepo.Get(ctx)
}

func (s *clearanceService) publish(ctx context.Context, evt dto.ClearanceEvent) {
	if s.producer == nil {
		return
	}
	evt.OccurredAt = time.Now()
	if evt.SessionYear == "" {
		if settings, err := s.settingsRepo.Get(ctx); err == nil {
			evt.SessionYear = settings.SessionYear
		}
	}

	b, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[CLEARANCE] marshal event error: %v", err)
		return
	}
	// ไม่ให้ kafka ล่มแล้วทำให้ request ล้ม
	if err := s.producer.PublishMessage(ctx, []byte(evt.Email), b); err != nil {
		log.Printf("[CLEARANCE] publish %s error: %v", evt.Type, err)
	}
}

func (s *clearanceService) audit(ctx context.Context, actor, action, entityID, reference, note string) {
	if s.auditRepo == nil {
		return
	}
	entry := &domain.AuditLog{
		Actor:     actor,
		Action:    action,
		Entity:    "student_profile",
		EntityID:  entityID,
		Reference: reference,
	}
	if note != "" {
		entry.Note = &note
	}
	if err := s.auditRepo.Record(ctx, entry); err != nil {
		log.Printf("[CLEARANCE] audit %s error: %v", action, err)
	}
}
