package user

import (
	"time"

	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

var Statuses = []string{string(StatusPending), string(StatusActive), string(StatusInactive), string(StatusBlocked)}

const (
	ContractFullTime = "full_time"
	ContractPartTime = "part_time"
	ContractContract = "contract"
	ContractIntern   = "intern"
)

var ContractTypes = []string{ContractFullTime, ContractPartTime, ContractContract, ContractIntern}

// transitions lists the allowed target states for every state.
var transitions = map[Status][]Status{
	StatusPending:  {StatusActive, StatusInactive},
	StatusActive:   {StatusBlocked, StatusInactive},
	StatusBlocked:  {StatusActive, StatusInactive},
	StatusInactive: {StatusActive},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a user in state from may move to state to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type User struct {
	ID             int64       `json:"id"`
	EmployeeNumber string      `json:"employeeNumber"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	PasswordHash   string      `json:"-"`
	Status         Status      `json:"status"`
	DepartmentID   *int64      `json:"departmentId"`
	DepartmentName string      `json:"departmentName,omitempty"`
	Employment     *Employment `json:"employment,omitempty"`
	Roles          []string    `json:"roles"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type Employment struct {
	StartDate    string  `json:"startDate"`
	EndDate      *string `json:"endDate"`
	ContractType string  `json:"contractType"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Status       string
	DepartmentID *int64
	Search       string
}

// Row is a users row joined with its department name.
type Row struct {
	userDatamodel.User
	DepartmentName *string `gorm:"column:department_name"`
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:             u.ID,
		EmployeeNumber: u.EmployeeNumber,
		Name:           u.Name,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		Status:         string(u.Status),
		DepartmentID:   u.DepartmentID,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func FromDataModel(m *userDatamodel.User) *User {
	return &User{
		ID:             m.ID,
		EmployeeNumber: m.EmployeeNumber,
		Name:           m.Name,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		Status:         Status(m.Status),
		DepartmentID:   m.DepartmentID,
		Roles:          []string{},
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func FromRow(r *Row) *User {
	u := FromDataModel(&r.User)
	if r.DepartmentName != nil {
		u.DepartmentName = *r.DepartmentName
	}
	return u
}

func EmploymentFromDataModel(m *userDatamodel.Employment) *Employment {
	if m == nil {
		return nil
	}
	e := &Employment{
		StartDate:    dates.Format(m.StartDate),
		ContractType: m.ContractType,
	}
	if m.EndDate != nil {
		end := dates.Format(*m.EndDate)
		e.EndDate = &end
	}
	return e
}

// snapshot is the audited view of a user; it never carries the password hash.
type snapshot struct {
	ID             int64       `json:"id"`
	EmployeeNumber string      `json:"employeeNumber"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Status         Status      `json:"status"`
	DepartmentID   *int64      `json:"departmentId"`
	Employment     *Employment `json:"employment,omitempty"`
}

func (u *User) snapshot() snapshot {
	return snapshot{
		ID:             u.ID,
		EmployeeNumber: u.EmployeeNumber,
		Name:           u.Name,
		Email:          u.Email,
		Status:         u.Status,
		DepartmentID:   u.DepartmentID,
		Employment:     u.Employment,
	}
}
