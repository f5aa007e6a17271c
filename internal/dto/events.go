package dto

import "time"

const (
	EventPaymentConfirmed  = "clearance.payment_confirmed"
	EventSubmitted         = "clearance.submitted"
	EventPaymentUnrecorded = "clearance.payment_unrecorded"
)

// ClearanceEvent is published to Kafka and consumed by the notifier.
type ClearanceEvent struct {
	Type             string    `json:"type"`
	ProfileID        string    `json:"profile_id,omitempty"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Reference        string    `json:"reference,omitempty"`
	AmountMinorUnits int64     `json:"amount_minor_units,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	SessionYear      string    `json:"session_year,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
