package user

import (
	"strings"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	"github.com/frahmantamala/employee-management/internal/core/common/validation"
)

const employeeNumberMessage = "employeeNumber must be 3-20 letters or digits"

type CreateUserDTO struct {
	EmployeeNumber string `json:"employeeNumber"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	DepartmentID   *int64 `json:"departmentId"`
	// Status overrides the status derived from the start date.
	Status       string `json:"status"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	ContractType string `json:"contractType"`
}

func (d *CreateUserDTO) Normalize() {
	d.EmployeeNumber = strings.TrimSpace(d.EmployeeNumber)
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Status = strings.ToLower(strings.TrimSpace(d.Status))
	d.StartDate = strings.TrimSpace(d.StartDate)
	d.EndDate = strings.TrimSpace(d.EndDate)
	d.ContractType = strings.TrimSpace(d.ContractType)
	if d.ContractType == "" {
		d.ContractType = ContractFullTime
	}
}

func (d *CreateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("employeeNumber", d.EmployeeNumber).Required().Matches(validation.EmployeeNumberPattern, employeeNumberMessage)
	v.Field("name", d.Name).Required().MinLength(2).MaxLength(100)
	v.Field("email", d.Email).Required().Email()
	v.Field("password", d.Password).Required().MinLength(8)
	v.Field("departmentId", d.DepartmentID).Optional().Custom(positiveID("departmentId"))
	v.Field("status", d.Status).Optional().OneOf(string(StatusPending), string(StatusActive), string(StatusInactive))
	v.Field("startDate", d.StartDate).Optional().Date()
	v.Field("endDate", d.EndDate).Optional().Date().Custom(notBefore(d.StartDate))
	v.Field("contractType", d.ContractType).Required().OneOf(ContractTypes...)
	return v.Validate()
}

// UpdateUserDTO is partial. DepartmentID 0 detaches the user from its
// department and an empty EndDate clears the contract end.
type UpdateUserDTO struct {
	EmployeeNumber *string `json:"employeeNumber"`
	Name           *string `json:"name"`
	Email          *string `json:"email"`
	Password       *string `json:"password"`
	DepartmentID   *int64  `json:"departmentId"`
	Status         *string `json:"status"`
	Reason         *string `json:"reason"`
	StartDate      *string `json:"startDate"`
	EndDate        *string `json:"endDate"`
	ContractType   *string `json:"contractType"`
}

func (d *UpdateUserDTO) Normalize() {
	trim := func(p **string, fn func(string) string) {
		if *p == nil {
			return
		}
		v := fn(strings.TrimSpace(**p))
		*p = &v
	}
	same := func(s string) string { return s }
	trim(&d.EmployeeNumber, same)
	trim(&d.Name, same)
	trim(&d.Email, strings.ToLower)
	trim(&d.Status, strings.ToLower)
	trim(&d.Reason, same)
	trim(&d.StartDate, same)
	trim(&d.EndDate, same)
	trim(&d.ContractType, same)
}

func (d *UpdateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	if d.EmployeeNumber != nil {
		v.Field("employeeNumber", *d.EmployeeNumber).Required().Matches(validation.EmployeeNumberPattern, employeeNumberMessage)
	}
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MinLength(2).MaxLength(100)
	}
	if d.Email != nil {
		v.Field("email", *d.Email).Required().Email()
	}
	if d.Password != nil {
		v.Field("password", *d.Password).Required().MinLength(8)
	}
	if d.Status != nil {
		v.Field("status", *d.Status).Required().OneOf(Statuses...)
	}
	if d.StartDate != nil {
		v.Field("startDate", *d.StartDate).Required().Date()
	}
	if d.EndDate != nil {
		start := ""
		if d.StartDate != nil {
			start = *d.StartDate
		}
		v.Field("endDate", *d.EndDate).Optional().Date().Custom(notBefore(start))
	}
	if d.ContractType != nil {
		v.Field("contractType", *d.ContractType).Required().OneOf(ContractTypes...)
	}
	return v.Validate()
}

func (d *UpdateUserDTO) touchesEmployment() bool {
	return d.StartDate != nil || d.EndDate != nil || d.ContractType != nil
}

func positiveID(field string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		if id, ok := value.(*int64); ok && id != nil && *id <= 0 {
			return internal.NewValidationFieldError(field, field+" must be a positive integer", internal.ErrCodeInvalidFormat)
		}
		return nil
	}
}

func notBefore(start string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		end, ok := value.(string)
		if !ok || start == "" {
			return nil
		}
		s, err := dates.Parse(start)
		if err != nil {
			return nil
		}
		e, err := dates.Parse(end)
		if err != nil {
			return nil
		}
		if e.Before(s) {
			return internal.NewValidationFieldError("endDate", "endDate must not be before startDate", internal.ErrCodeInvalidDate)
		}
		return nil
	}
}
