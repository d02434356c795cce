package audit

import (
	"encoding/json"
	"strings"
	"time"

	auditDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/audit"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const (
	ActionUserCreated            = "user_created"
	ActionUserUpdated            = "user_updated"
	ActionUserBlocked            = "user_blocked"
	ActionUserUnblocked          = "user_unblocked"
	ActionUserDeactivated        = "user_deactivated"
	ActionUserReactivated        = "user_reactivated"
	ActionUserActivated          = "user_activated"
	ActionUserContractExpired    = "user_contract_expired"
	ActionUserPermanentlyDeleted = "user_permanently_deleted"
	ActionRoleAssigned           = "role_assigned"
	ActionRoleRevoked            = "role_revoked"
	ActionRoleCreated            = "role_created"
	ActionRoleUpdated            = "role_updated"
	ActionRoleDeleted            = "role_deleted"
	ActionRolePermissionsUpdated = "role_permissions_updated"
	ActionPermissionCreated      = "permission_created"
	ActionDepartmentCreated      = "department_created"
	ActionDepartmentUpdated      = "department_updated"
	ActionDepartmentDeleted      = "department_deleted"
	ActionLogout                 = "logout"
	ActionAuditExported          = "audit_exported"
)

var actionLabels = map[string]string{
	ActionUserCreated:            "Create User",
	ActionUserUpdated:            "Update User",
	ActionUserBlocked:            "Block User",
	ActionUserUnblocked:          "Unblock User",
	ActionUserDeactivated:        "Deactivate User",
	ActionUserReactivated:        "Reactivate User",
	ActionUserActivated:          "Activate User",
	ActionUserContractExpired:    "Contract Expired",
	ActionUserPermanentlyDeleted: "Delete User",
	ActionRoleAssigned:           "Assign Role",
	ActionRoleRevoked:            "Revoke Role",
	ActionRoleCreated:            "Create Role",
	ActionRoleUpdated:            "Update Role",
	ActionRoleDeleted:            "Delete Role",
	ActionRolePermissionsUpdated: "Update Role Permissions",
	ActionPermissionCreated:      "Create Permission",
	ActionDepartmentCreated:      "Create Department",
	ActionDepartmentUpdated:      "Update Department",
	ActionDepartmentDeleted:      "Delete Department",
	ActionLogout:                 "Logout",
	ActionAuditExported:          "Export Audit Log",
}

// ActionLabel returns the human readable name of an action, falling back to a
// title-cased form of the raw value.
func ActionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	words := strings.Fields(strings.ReplaceAll(action, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Input describes one audit entry to append. Zero values mean "unknown".
type Input struct {
	ActorID      *int64
	Action       string
	TargetUserID *int64
	TargetTable  string
	TargetID     *int64
	Before       interface{}
	After        interface{}
	Status       string
	Details      string
	IPAddress    string
	UserAgent    string
}

type LoginInput struct {
	UserID        *int64
	Success       bool
	IPAddress     string
	UserAgent     string
	FailureReason string
}

type Entry struct {
	ID             int64           `json:"id"`
	ActorID        *int64          `json:"userId,omitempty"`
	ActorName      string          `json:"userName,omitempty"`
	Action         string          `json:"action"`
	ActionLabel    string          `json:"actionLabel"`
	TargetUserID   *int64          `json:"targetUserId,omitempty"`
	TargetUserName string          `json:"targetUserName,omitempty"`
	TargetTable    *string         `json:"targetTable,omitempty"`
	TargetID       *int64          `json:"targetId,omitempty"`
	OldValues      json.RawMessage `json:"oldValues,omitempty"`
	NewValues      json.RawMessage `json:"newValues,omitempty"`
	Status         string          `json:"status"`
	Details        *string         `json:"details,omitempty"`
	IPAddress      *string         `json:"ipAddress,omitempty"`
	UserAgent      *string         `json:"userAgent,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type LoginEvent struct {
	ID            int64     `json:"id"`
	UserID        *int64    `json:"userId,omitempty"`
	UserName      string    `json:"userName,omitempty"`
	UserEmail     string    `json:"userEmail,omitempty"`
	Success       bool      `json:"success"`
	IPAddress     *string   `json:"ipAddress,omitempty"`
	UserAgent     *string   `json:"userAgent,omitempty"`
	FailureReason *string   `json:"failureReason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func EntryFromDataModel(m *auditDatamodel.AuditLog) *Entry {
	return &Entry{
		ID:           m.ID,
		ActorID:      m.UserID,
		Action:       m.Action,
		ActionLabel:  ActionLabel(m.Action),
		TargetUserID: m.TargetUserID,
		TargetTable:  m.TargetTable,
		TargetID:     m.TargetID,
		OldValues:    m.OldValues,
		NewValues:    m.NewValues,
		Status:       m.Status,
		Details:      m.Details,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		CreatedAt:    m.CreatedAt,
	}
}

func LoginEventFromDataModel(m *auditDatamodel.LoginEvent) *LoginEvent {
	return &LoginEvent{
		ID:            m.ID,
		UserID:        m.UserID,
		Success:       m.Success,
		IPAddress:     m.IPAddress,
		UserAgent:     m.UserAgent,
		FailureReason: m.FailureReason,
		OccurredAt:    m.OccurredAt,
	}
}

// Filter narrows audit log queries. Limit 0 means the repository default.
type Filter struct {
	Action       string
	ActorID      *int64
	TargetUserID *int64
	Status       string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type LoginFilter struct {
	UserID  *int64
	Success *bool
	From    *time.Time
	Limit   int
	Offset  int
}

// IPFailureCount is one row of the suspicious address aggregation.
type IPFailureCount struct {
	IPAddress string `json:"ipAddress" gorm:"column:ip_address"`
	Failures  int64  `json:"failures" gorm:"column:failures"`
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
