package department

import (
	"strings"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/core/common/validation"
)

const codeFormatMessage = "code must be 2-10 uppercase letters or digits"

type CreateDepartmentDTO struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (d *CreateDepartmentDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Code = NormalizeCode(d.Code)
	d.Description = strings.TrimSpace(d.Description)
}

func (d *CreateDepartmentDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(2).MaxLength(100)
	v.Field("code", d.Code).Required().Matches(validation.DepartmentCodePattern, codeFormatMessage)
	v.Field("description", d.Description).Optional().MaxLength(255)
	return v.Validate()
}

// UpdateDepartmentDTO is partial; nil fields are left untouched.
type UpdateDepartmentDTO struct {
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	Description *string `json:"description"`
}

func (d *UpdateDepartmentDTO) Normalize() {
	if d.Name != nil {
		name := strings.TrimSpace(*d.Name)
		d.Name = &name
	}
	if d.Code != nil {
		code := NormalizeCode(*d.Code)
		d.Code = &code
	}
	if d.Description != nil {
		description := strings.TrimSpace(*d.Description)
		d.Description = &description
	}
}

func (d *UpdateDepartmentDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MinLength(2).MaxLength(100)
	}
	if d.Code != nil {
		v.Field("code", *d.Code).Required().Matches(validation.DepartmentCodePattern, codeFormatMessage)
	}
	if d.Description != nil {
		v.Field("description", *d.Description).Optional().MaxLength(255)
	}
	return v.Validate()
}
