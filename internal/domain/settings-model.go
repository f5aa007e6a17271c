package domain

import (
	"strings"
	"time"
)

const SettingsID = 1

// SystemSettings is the singleton row that controls fee and toggles.
type SystemSettings struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	SessionYear        string    `gorm:"type:varchar(20);not null" json:"session_year"`
	ClearanceFee       int64     `gorm:"not null" json:"clearance_fee"`
	Currency           string    `gorm:"type:varchar(3);not null;default:NGN" json:"currency"`
	PaymentDeadline    string    `gorm:"type:varchar(10)" json:"payment_deadline"`
	GatewayPublicKey   string    `gorm:"type:varchar(255)" json:"gateway_public_key"`
	PaymentsEnabled    bool      `json:"payments_enabled"`
	SubmissionsEnabled bool      `json:"submissions_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AmountMinorUnits is the fee in the smallest currency unit (kobo for NGN).
func (s SystemSettings) AmountMinorUnits() int64 {
	return s.ClearanceFee * 100
}

// HasUsablePublicKey reports false for empty or demo/placeholder keys.
func (s SystemSettings) HasUsablePublicKey() bool {
	key := strings.TrimSpace(s.GatewayPublicKey)
	if key == "" {
		return false
	}
	return !strings.Contains(key, "REPLACE_ME") && !strings.Contains(key, "DEMO")
}
