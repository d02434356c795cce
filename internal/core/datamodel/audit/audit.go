package audit

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           int64           `gorm:"primaryKey"`
	UserID       *int64          `gorm:"column:user_id;index"`
	Action       string          `gorm:"column:action;size:50;index;not null"`
	TargetUserID *int64          `gorm:"column:target_user_id"`
	TargetTable  *string         `gorm:"column:target_table;size:50"`
	TargetID     *int64          `gorm:"column:target_id"`
	OldValues    json.RawMessage `gorm:"column:old_values"`
	NewValues    json.RawMessage `gorm:"column:new_values"`
	Status       string          `gorm:"column:status;size:20;not null"`
	Details      *string         `gorm:"column:details"`
	IPAddress    *string         `gorm:"column:ip_address;size:45"`
	UserAgent    *string         `gorm:"column:user_agent"`
	CreatedAt    time.Time       `gorm:"column:created_at;index;not null"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

type LoginEvent struct {
	ID            int64     `gorm:"primaryKey"`
	UserID        *int64    `gorm:"column:user_id;index"`
	Success       bool      `gorm:"column:success;not null"`
	IPAddress     *string   `gorm:"column:ip_address;size:45"`
	UserAgent     *string   `gorm:"column:user_agent"`
	FailureReason *string   `gorm:"column:failure_reason;size:255"`
	OccurredAt    time.Time `gorm:"column:occurred_at;index;not null"`
}

func (LoginEvent) TableName() string {
	return "login_events"
}
