package role

import (
	"time"

	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
)

type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	ActiveUsers int64     `json:"activeUsers"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Assignment is one temporal grant of a role to a user.
type Assignment struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	RoleID    int64      `json:"roleId"`
	RoleName  string     `json:"roleName"`
	ValidFrom time.Time  `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo"`
	GrantedBy *int64     `json:"grantedBy,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ActiveAt uses the same day semantics as the evaluator: valid_to is exclusive.
func (a *Assignment) ActiveAt(at time.Time) bool {
	if dates.Day(a.ValidFrom).After(dates.Day(at)) {
		return false
	}
	return a.ValidTo == nil || dates.Day(*a.ValidTo).After(dates.Day(at))
}

// AssignmentRow is a user_roles row joined with its role name.
type AssignmentRow struct {
	roleDatamodel.UserRole
	RoleName string `gorm:"column:role_name"`
}

func FromDataModel(m *roleDatamodel.Role) *Role {
	return &Role{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Permissions: []string{},
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func PermissionFromDataModel(m *roleDatamodel.Permission) *Permission {
	return &Permission{
		ID:          m.ID,
		Name:        m.Name,
		Action:      m.Action,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func AssignmentFromRow(row *AssignmentRow, at time.Time) *Assignment {
	a := &Assignment{
		ID:        row.ID,
		UserID:    row.UserID,
		RoleID:    row.RoleID,
		RoleName:  row.RoleName,
		ValidFrom: row.ValidFrom,
		ValidTo:   row.ValidTo,
		GrantedBy: row.GrantedBy,
		CreatedAt: row.CreatedAt,
	}
	a.Active = a.ActiveAt(at)
	return a
}
