package role

type CreateRoleDTO struct {
	Name          string  `json:"name" validate:"required,min=2,max=50"`
	Description   string  `json:"description" validate:"max=255"`
	PermissionIDs []int64 `json:"permissionIds"`
}

// UpdateRoleDTO is partial; nil fields are left untouched.
type UpdateRoleDTO struct {
	Name          *string  `json:"name" validate:"omitempty,min=2,max=50"`
	Description   *string  `json:"description" validate:"omitempty,max=255"`
	PermissionIDs *[]int64 `json:"permissionIds"`
}

type CreatePermissionDTO struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Action      string `json:"action" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

type AssignRoleDTO struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}
