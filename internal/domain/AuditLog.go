package domain

import "time"

const (
	AuditPaymentConfirmed  = "payment_confirmed"
	AuditPaymentUnrecorded = "payment_unrecorded"
	AuditPaymentDuplicate  = "payment_duplicate"
	AuditSubmitted         = "submitted"
	AuditSettingsUpdated   = "settings_updated"
	AuditAdminLogin        = "admin_login"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `gorm:"type:varchar(255);not null;index" json:"actor"` // applicant email or "admin"
	Action    string    `gorm:"type:varchar(100);not null" json:"action"`
	Entity    string    `gorm:"type:varchar(100);not null" json:"entity"`
	EntityID  string    `gorm:"type:varchar(64);index" json:"entity_id"`
	Reference string    `gorm:"type:varchar(64)" json:"reference,omitempty"`
	Note      *string   `gorm:"type:text" json:"note,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
