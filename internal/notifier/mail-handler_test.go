package notifier

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sent
	err  error
}

func (f *fakeMailer) Send(to, subject, body string) error {
	f.sent = append(f.sent, sent{to, subject, body})
	return f.err
}

func encode(t *testing.T, e dto.ClearanceEvent) string {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return string(b)
}

func TestHandleMessage_PaymentConfirmed(t *testing.T) {
	m := &fakeMailer{}
	h := NewMailHandler(m, "admissions@uni.example", "https://portal.example")

	err := h.HandleMessage(encode(t, dto.ClearanceEvent{
		Type:             dto.EventPaymentConfirmed,
		Email:            "ada@example.com",
		Name:             "Ada Obi",
		Reference:        "483920112",
		AmountMinorUnits: 9900000,
		Currency:         "NGN",
		SessionYear:      "2025/2026",
	}))
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "ada@example.com", m.sent[0].to)
	assert.Contains(t, m.sent[0].body, "NGN 99,000.00")
	assert.Contains(t, m.sent[0].body, "483920112")
	assert.Contains(t, m.sent[0].body, "https://portal.example")
}

func TestHandleMessage_UnrecordedGoesToAdmissions(t *testing.T) {
	m := &fakeMailer{}
	h := NewMailHandler(m, "admissions@uni.example", "")

	err := h.HandleMessage(encode(t, dto.ClearanceEvent{
		Type:      dto.EventPaymentUnrecorded,
		Email:     "ada@example.com",
		Name:      "Ada <Obi>",
		Reference: "77",
		Reason:    "store down",
	}))
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "admissions@uni.example", m.sent[0].to)
	assert.Contains(t, m.sent[0].subject, "77")
	assert.Contains(t, m.sent[0].body, "Ada &lt;Obi&gt;")
}

func TestHandleMessage_NoAdmissionsAddress(t *testing.T) {
	h := NewMailHandler(&fakeMailer{}, "", "")
	err := h.HandleMessage(encode(t, dto.ClearanceEvent{Type: dto.EventPaymentUnrecorded, Reference: "1"}))
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.ErrorIs(t, err, interfaces.ErrPermanent)
}

func TestHandleMessage_UnrecordedSendFailureMustBeRetried(t *testing.T) {
	m := &fakeMailer{err: errors.New("smtp down")}
	h := NewMailHandler(m, "admissions@uni.example", "")

	err := h.HandleMessage(encode(t, dto.ClearanceEvent{Type: dto.EventPaymentUnrecorded, Reference: "77"}))
	assert.ErrorIs(t, err, interfaces.ErrMustDeliver)

	err = h.HandleMessage(encode(t, dto.ClearanceEvent{Type: dto.EventPaymentConfirmed, Email: "x@y.z", Reference: "78"}))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrMustDeliver)
}

func TestHandleMessage_SkipsUnknownAndReportsErrors(t *testing.T) {
	m := &fakeMailer{}
	h := NewMailHandler(m, "a@b.c", "")

	require.NoError(t, h.HandleMessage(encode(t, dto.ClearanceEvent{Type: "something.else", Email: "x@y.z"})))
	assert.Empty(t, m.sent)

	assert.ErrorIs(t, h.HandleMessage("{not json"), interfaces.ErrPermanent)

	m.err = errors.New("smtp down")
	err := h.HandleMessage(encode(t, dto.ClearanceEvent{Type: dto.EventSubmitted, Email: "x@y.z", Name: "X"}))
	assert.EqualError(t, err, "smtp down")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "NGN 99,000.00", FormatAmount(9900000, "NGN"))
	assert.Equal(t, "NGN 0.05", FormatAmount(5, ""))
	assert.Equal(t, "USD 1,234,567.89", FormatAmount(123456789, "USD"))
	assert.Equal(t, "NGN 999.00", FormatAmount(99900, "NGN"))
}
