package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/repository"
	"github.com/SundayYogurt/clearance_service/internal/testutil"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	kv       *testutil.MemoryKV
	gateway  *testutil.Gateway
	uploader *testutil.Uploader
	producer *testutil.Producer
	students repository.StudentProfileRepository
	settings repository.SettingsRepository
	audit    repository.AuditRepository
	svc      ClearanceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		kv:       testutil.NewMemoryKV(),
		gateway:  &testutil.Gateway{},
		uploader: &testutil.Uploader{},
		producer: &testutil.Producer{},
	}
	h.students = repository.NewKVStudentProfileRepository(h.kv)
	h.settings = repository.NewKVSettingsRepository(h.kv)
	h.audit = repository.NewKVAuditRepository(h.kv)

	_, err := h.settings.EnsureInitialized(context.Background(), domain.SystemSettings{
		SessionYear:        "2025/2026",
		ClearanceFee:       99000,
		Currency:           "NGN",
		PaymentDeadline:    "2025-12-31",
		GatewayPublicKey:   "SB-Mid-client-live",
		PaymentsEnabled:    true,
		SubmissionsEnabled: true,
	})
	require.NoError(t, err)

	h.svc = NewClearanceService(
		NewSessionStore(h.kv, time.Hour),
		h.students, h.settings, h.audit,
		h.gateway, h.uploader, h.producer,
	)
	return h
}

var ada = workflow.Applicant{Name: "Ada Obi", Email: "ada@example.com", Phone: "08030000000"}

func (h *harness) toPending(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	id, st, err := h.svc.OpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageLanding, st.Stage)

	_, err = h.svc.Start(ctx, id)
	require.NoError(t, err)

	opened, st, err := h.svc.InitiatePayment(ctx, id, ada)
	require.NoError(t, err)
	require.NotNil(t, opened.Pending)
	assert.Equal(t, workflow.StagePaymentPending, st.Stage)
	return id, opened.Pending.Reference
}

func (h *harness) toForm(t *testing.T) string {
	t.Helper()
	id, ref := h.toPending(t)
	st, err := h.svc.ConfirmPayment(context.Background(), id, ref)
	require.NoError(t, err)
	require.Equal(t, workflow.StageFormFilling, st.Stage)
	return id
}

func TestClearance_FullFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.toForm(t)

	st, err := h.svc.ApplyChanges(ctx, id, []workflow.Change{
		workflow.SetField{Name: "jamb_reg_number", Value: "12345678AB"},
		workflow.SetField{Name: "gender", Value: "Female"},
	})
	require.NoError(t, err)
	assert.Equal(t, "12345678AB", st.Profile.JambRegNumber)

	for i := 0; i < domain.LastSection; i++ {
		_, err = h.svc.Next(ctx, id)
		require.NoError(t, err)
	}
	for _, slot := range domain.DocumentSlots {
		url, _, err := h.svc.UploadDocument(ctx, id, slot, workflow.Document{Data: []byte("%PDF-1.4")})
		require.NoError(t, err)
		assert.Contains(t, url, string(slot))
	}

	st, err = h.svc.Submit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageSubmitted, st.Stage)

	stored, err := h.students.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.SubmittedAt)
	assert.Equal(t, "12345678AB", stored.JambRegNumber)

	assert.Equal(t, []string{"ada@example.com", "ada@example.com"}, h.producer.Keys())
	var evt dto.ClearanceEvent
	require.NoError(t, json.Unmarshal(h.producer.Messages[1].Value, &evt))
	assert.Equal(t, dto.EventSubmitted, evt.Type)
	assert.Equal(t, "2025/2026", evt.SessionYear)

	logs, err := h.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.AuditSubmitted, logs[0].Action)
}

func TestClearance_InitiateUsesMinorUnits(t *testing.T) {
	h := newHarness(t)
	h.toPending(t)
	require.Equal(t, 1, h.gateway.OpenCount())
	assert.Equal(t, int64(9900000), h.gateway.Opened[0].AmountMinorUnits)
}

func TestClearance_ConfirmRequiresGatewayConfirmation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, ref := h.toPending(t)
	h.gateway.Unpaid = map[string]bool{ref: true}

	st, err := h.svc.ConfirmPayment(ctx, id, ref)
	assert.ErrorIs(t, err, workflow.ErrValidation)
	assert.Equal(t, workflow.StagePaymentPending, st.Stage)

	_, err = h.students.FindByEmail(ctx, ada.Email)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestClearance_ConfirmTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, ref := h.toPending(t)

	_, err := h.svc.ConfirmPayment(ctx, id, ref)
	require.NoError(t, err)
	st, err := h.svc.ConfirmPayment(ctx, id, ref)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageFormFilling, st.Stage)
	assert.Len(t, h.producer.Messages, 1)

	all, err := h.students.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClearance_PaidApplicantSkipsGatewayInNewSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.toForm(t)

	id, _, err := h.svc.OpenSession(ctx)
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, id)
	require.NoError(t, err)

	opened, st, err := h.svc.InitiatePayment(ctx, id, ada)
	require.NoError(t, err)
	assert.True(t, opened.SkippedPayment)
	assert.Equal(t, workflow.StageFormFilling, st.Stage)
	assert.Equal(t, 1, h.gateway.OpenCount())
}

func TestClearance_CancelDiscards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, _ := h.toPending(t)

	st, err := h.svc.CancelPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageVerification, st.Stage)

	all, err := h.students.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClearance_UnrecordedPaymentIsAnnounced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, ref := h.toPending(t)

	h.kv.FailWrites = errors.New("store down")
	h.kv.FailKeys = []string{repository.StudentsKey}
	_, err := h.svc.ConfirmPayment(ctx, id, ref)
	require.ErrorIs(t, err, workflow.ErrPaymentNotRecorded)
	we, ok := workflow.AsError(err)
	require.True(t, ok)
	assert.Equal(t, ref, we.Reference)

	require.Len(t, h.producer.Messages, 1)
	var evt dto.ClearanceEvent
	require.NoError(t, json.Unmarshal(h.producer.Messages[0].Value, &evt))
	assert.Equal(t, dto.EventPaymentUnrecorded, evt.Type)
	assert.Equal(t, ref, evt.Reference)

	logs, err := h.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditPaymentUnrecorded, logs[0].Action)

	// retry after recovery
	h.kv.FailWrites = nil
	st, err := h.svc.ConfirmPayment(ctx, id, ref)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageFormFilling, st.Stage)
	assert.Len(t, h.producer.Messages, 2)
}

func TestClearance_WebhookOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		id, ref := h.toPending(t)
		require.NoError(t, h.svc.HandleGatewayOutcome(ctx, ref, true))

		st, err := h.svc.GetState(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageFormFilling, st.Stage)

		// duplicate delivery
		require.NoError(t, h.svc.HandleGatewayOutcome(ctx, ref, true))
	})

	t.Run("cancel", func(t *testing.T) {
		h := newHarness(t)
		id, ref := h.toPending(t)
		require.NoError(t, h.svc.HandleGatewayOutcome(ctx, ref, false))

		st, err := h.svc.GetState(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageVerification, st.Stage)
	})

	t.Run("cancel for unknown reference", func(t *testing.T) {
		h := newHarness(t)
		assert.NoError(t, h.svc.HandleGatewayOutcome(ctx, "nope", false))
		assert.Empty(t, h.producer.Messages)
	})

	t.Run("success for unknown reference is surfaced", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.HandleGatewayOutcome(ctx, "777", true)
		require.ErrorIs(t, err, workflow.ErrPaymentNotRecorded)

		require.Len(t, h.producer.Messages, 1)
		var evt dto.ClearanceEvent
		require.NoError(t, json.Unmarshal(h.producer.Messages[0].Value, &evt))
		assert.Equal(t, dto.EventPaymentUnrecorded, evt.Type)
		assert.Equal(t, "777", evt.Reference)

		logs, err := h.audit.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "777", logs[0].Reference)
	})
}

func TestClearance_WebhookSuccessAfterBrowserCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, ref := h.toPending(t)

	st, err := h.svc.CancelPayment(ctx, id)
	require.NoError(t, err)
	require.Equal(t, workflow.StageVerification, st.Stage)

	require.NoError(t, h.svc.HandleGatewayOutcome(ctx, ref, true))

	stored, err := h.students.FindByEmail(ctx, ada.Email)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid())
	assert.Equal(t, ref, stored.PaymentReference)

	require.Len(t, h.producer.Messages, 1)
	var evt dto.ClearanceEvent
	require.NoError(t, json.Unmarshal(h.producer.Messages[0].Value, &evt))
	assert.Equal(t, dto.EventPaymentConfirmed, evt.Type)
	assert.Equal(t, int64(9900000), evt.AmountMinorUnits)

	logs, err := h.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditPaymentConfirmed, logs[0].Action)

	// redelivery is not announced again
	require.NoError(t, h.svc.HandleGatewayOutcome(ctx, ref, true))
	assert.Len(t, h.producer.Messages, 1)

	// the applicant continues straight into the form
	opened, st, err := h.svc.InitiatePayment(ctx, id, ada)
	require.NoError(t, err)
	assert.True(t, opened.SkippedPayment)
	assert.Equal(t, workflow.StageFormFilling, st.Stage)
	assert.Equal(t, 1, h.gateway.OpenCount())
}

func TestClearance_BrowserConfirmOfEarlierAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, first := h.toPending(t)
	_, err := h.svc.CancelPayment(ctx, id)
	require.NoError(t, err)

	st, err := h.svc.ConfirmPayment(ctx, id, first)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageVerification, st.Stage)

	stored, err := h.students.FindByEmail(ctx, ada.Email)
	require.NoError(t, err)
	assert.Equal(t, first, stored.PaymentReference)

	// a reference this session never opened is refused
	_, err = h.svc.ConfirmPayment(ctx, id, "31337")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestClearance_WebhookSuccessAfterNewerAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, first := h.toPending(t)
	_, err := h.svc.CancelPayment(ctx, id)
	require.NoError(t, err)
	opened, _, err := h.svc.InitiatePayment(ctx, id, ada)
	require.NoError(t, err)
	require.NotEqual(t, first, opened.Pending.Reference)

	require.NoError(t, h.svc.HandleGatewayOutcome(ctx, first, true))

	stored, err := h.students.FindByEmail(ctx, ada.Email)
	require.NoError(t, err)
	assert.Equal(t, first, stored.PaymentReference)

	st, err := h.svc.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StagePaymentPending, st.Stage)
	assert.Equal(t, opened.Pending.Reference, st.Pending.Reference)
}

func TestClearance_WebhookSuccessAfterSessionExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, ref := h.toPending(t)

	later := time.Now().Add(2 * time.Hour)
	h.kv.Now = func() time.Time { return later }
	_, err := h.svc.GetState(ctx, id)
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, h.svc.HandleGatewayOutcome(ctx, ref, true))

	stored, err := h.students.FindByEmail(ctx, ada.Email)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid())
	assert.Len(t, h.producer.Messages, 1)
}

func TestClearance_LateSuccessStoreDownIsSurfaced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, ref := h.toPending(t)
	_, err := h.svc.CancelPayment(ctx, id)
	require.NoError(t, err)

	h.kv.FailWrites = errors.New("store down")
	h.kv.FailKeys = []string{repository.StudentsKey}
	err = h.svc.HandleGatewayOutcome(ctx, ref, true)
	require.ErrorIs(t, err, workflow.ErrPaymentNotRecorded)

	require.Len(t, h.producer.Messages, 1)
	var evt dto.ClearanceEvent
	require.NoError(t, json.Unmarshal(h.producer.Messages[0].Value, &evt))
	assert.Equal(t, dto.EventPaymentUnrecorded, evt.Type)
	assert.Equal(t, ada.Email, evt.Email)
	assert.Equal(t, ref, evt.Reference)
}

type slowProfiles struct {
	repository.StudentProfileRepository
	delay time.Duration
}

func (s slowProfiles) FindByEmail(ctx context.Context, email string) (*domain.StudentProfile, error) {
	time.Sleep(s.delay)
	return s.StudentProfileRepository.FindByEmail(ctx, email)
}

func TestClearance_ConfirmRacingWebhookAnnouncesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc = NewClearanceService(
		NewSessionStore(h.kv, time.Hour),
		slowProfiles{StudentProfileRepository: h.students, delay: 30 * time.Millisecond},
		h.settings, h.audit,
		h.gateway, h.uploader, h.producer,
	)
	id, ref := h.toPending(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = h.svc.ConfirmPayment(ctx, id, ref)
	}()
	go func() {
		defer wg.Done()
		errs[1] = h.svc.HandleGatewayOutcome(ctx, ref, true)
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Len(t, h.producer.Messages, 1)
	logs, err := h.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	st, err := h.svc.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageFormFilling, st.Stage)
}

func TestClearance_ConcurrentUploadsBothLand(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.uploader.Delay = 20 * time.Millisecond
	id := h.toForm(t)

	var wg sync.WaitGroup
	for _, slot := range []domain.DocumentSlot{domain.DocOLevel, domain.DocLGA} {
		wg.Add(1)
		go func(slot domain.DocumentSlot) {
			defer wg.Done()
			_, _, err := h.svc.UploadDocument(ctx, id, slot, workflow.Document{Data: []byte("img")})
			assert.NoError(t, err)
		}(slot)
	}
	wg.Wait()

	st, err := h.svc.GetState(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, st.Profile.DocOLevelURL)
	assert.NotEmpty(t, st.Profile.DocLGAURL)
	assert.Empty(t, st.Profile.DocAgeDeclarationURL)
}

func TestClearance_UploadFailureLeavesSlotEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.uploader.FailFor = map[string]bool{"clearance/doc_olevel_url": true}
	id := h.toForm(t)

	_, st, err := h.svc.UploadDocument(ctx, id, domain.DocOLevel, workflow.Document{Data: []byte("img")})
	require.ErrorIs(t, err, workflow.ErrUpload)
	assert.Empty(t, st.Profile.DocOLevelURL)
}

func TestClearance_UploadBeforeFormIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, _ := h.toPending(t)

	_, _, err := h.svc.UploadDocument(ctx, id, domain.DocOLevel, workflow.Document{Data: []byte("img")})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Zero(t, h.uploader.Calls)
}

func TestClearance_SubmitWithMissingDocuments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.toForm(t)
	for i := 0; i < domain.LastSection; i++ {
		_, err := h.svc.Next(ctx, id)
		require.NoError(t, err)
	}

	st, err := h.svc.Submit(ctx, id)
	assert.ErrorIs(t, err, workflow.ErrValidation)
	assert.Equal(t, workflow.StageFormFilling, st.Stage)

	stored, err := h.students.FindByEmail(ctx, ada.Email)
	require.NoError(t, err)
	assert.Nil(t, stored.SubmittedAt)
}

func TestClearance_ApplyChangesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.toForm(t)

	_, err := h.svc.ApplyChanges(ctx, id, []workflow.Change{
		workflow.SetField{Name: "surname", Value: "Okafor"},
		workflow.SetField{Name: "email", Value: "x@example.com"},
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	st, err := h.svc.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Obi", st.Profile.Surname)
}

func TestClearance_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetState(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.svc.Start(context.Background(), "6f1c3c55-8a43-4a69-9d55-2d8c6f3f2a10")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
