// Package notifier turns clearance events from Kafka into emails.
package notifier

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"strconv"
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrNoRecipient = errors.New("event has no recipient")

type MailHandler struct {
	mailer          Mailer
	admissionsEmail string
	portalURL       string
}

func NewMailHandler(m Mailer, admissionsEmail, portalURL string) *MailHandler {
	return &MailHandler{mailer: m, admissionsEmail: admissionsEmail, portalURL: portalURL}
}

type mailData struct {
	Name        string
	Email       string
	Reference   string
	Amount      string
	SessionYear string
	Reason      string
	PortalURL   string
}

// HandleMessage implements interfaces.ConsumerHandler. Unknown event types
// are skipped without error. Broken payloads and missing recipients are
// permanent; a failed send of an unrecorded-payment alert must be retried
// until it goes out.
func (h *MailHandler) HandleMessage(message string) error {
	var event dto.ClearanceEvent
	if err := json.Unmarshal([]byte(message), &event); err != nil {
		log.Printf("[MAIL] invalid event payload: %s\n", message)
		return fmt.Errorf("%w: %w", interfaces.ErrPermanent, err)
	}

	log.Printf("[MAIL] event received: type=%s email=%s ref=%s", event.Type, utils.MaskEmail(event.Email), event.Reference)

	data := mailData{
		Name:        event.Name,
		Email:       event.Email,
		Reference:   event.Reference,
		Amount:      FormatAmount(event.AmountMinorUnits, event.Currency),
		SessionYear: event.SessionYear,
		Reason:      event.Reason,
		PortalURL:   h.portalURL,
	}

	var to, subject, tmpl string
	switch event.Type {
	case dto.EventPaymentConfirmed:
		to, subject, tmpl = event.Email, "Clearance fee received", "payment-confirmed.html"
	case dto.EventSubmitted:
		to, subject, tmpl = event.Email, "Clearance form submitted", "submitted.html"
	case dto.EventPaymentUnrecorded:
		to, subject, tmpl = h.admissionsEmail, "URGENT: payment "+event.Reference+" not recorded", "payment-unrecorded.html"
	default:
		log.Printf("[MAIL] skip event type=%s", event.Type)
		return nil
	}
	if strings.TrimSpace(to) == "" {
		if event.Type == dto.EventPaymentUnrecorded {
			log.Printf("[MAIL] CRITICAL no admissions address for unrecorded payment ref=%s", event.Reference)
		}
		return fmt.Errorf("%w: %s: %w", interfaces.ErrPermanent, event.Type, ErrNoRecipient)
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrPermanent, err)
	}

	log.Println("[MAIL] sending...")
	err := h.mailer.Send(to, subject, body.String())
	log.Println("[MAIL] send finished, err =", err)
	if err != nil && event.Type == dto.EventPaymentUnrecorded {
		return fmt.Errorf("%w: %w", interfaces.ErrMustDeliver, err)
	}
	return err
}

// FormatAmount renders minor units as "NGN 99,000.00".
func FormatAmount(minor int64, currency string) string {
	if currency == "" {
		currency = "NGN"
	}
	neg := minor < 0
	if neg {
		minor = -minor
	}
	whole := strconv.FormatInt(minor/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, b.String(), minor%100)
}
