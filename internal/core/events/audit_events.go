package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeAuditRecorded     = "audit.recorded"
	EventTypeLoginRecorded     = "login.recorded"
	EventTypeUserStatusChanged = "user.status_changed"
	EventTypeUserDeleted       = "user.deleted"
)

type AuditRecordedEvent struct {
	BaseEvent
	EntryID int64  `json:"entry_id"`
	Action  string `json:"action"`
	ActorID *int64 `json:"actor_id,omitempty"`
}

func NewAuditRecordedEvent(entryID int64, action string, actorID *int64, record interface{}, at time.Time) *AuditRecordedEvent {
	return &AuditRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAuditRecorded,
			Timestamp: at,
			Data: map[string]interface{}{
				"entry_id": entryID,
				"action":   action,
				"record":   record,
			},
		},
		EntryID: entryID,
		Action:  action,
		ActorID: actorID,
	}
}

type LoginRecordedEvent struct {
	BaseEvent
	LoginEventID int64  `json:"login_event_id"`
	UserID       *int64 `json:"user_id,omitempty"`
	Success      bool   `json:"success"`
}

func NewLoginRecordedEvent(eventID int64, userID *int64, success bool, record interface{}, at time.Time) *LoginRecordedEvent {
	return &LoginRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeLoginRecorded,
			Timestamp: at,
			Data: map[string]interface{}{
				"login_event_id": eventID,
				"success":        success,
				"record":         record,
			},
		},
		LoginEventID: eventID,
		UserID:       userID,
		Success:      success,
	}
}

// UserStatusChangedEvent is published after a lifecycle transition commits.
type UserStatusChangedEvent struct {
	BaseEvent
	UserID     int64  `json:"user_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

func NewUserStatusChangedEvent(userID int64, from, to string) *UserStatusChangedEvent {
	return &UserStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserStatusChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":     userID,
				"from_status": from,
				"to_status":   to,
			},
		},
		UserID:     userID,
		FromStatus: from,
		ToStatus:   to,
	}
}

type UserDeletedEvent struct {
	BaseEvent
	UserID int64 `json:"user_id"`
}

func NewUserDeletedEvent(userID int64) *UserDeletedEvent {
	return &UserDeletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserDeleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
			},
		},
		UserID: userID,
	}
}
