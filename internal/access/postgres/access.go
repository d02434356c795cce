package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/employee-management/internal/access"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetIdentity(ctx context.Context, userID int64) (*access.Identity, error) {
	var u userDatamodel.User
	err := datastore.Conn(ctx, r.db).Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &access.Identity{
		UserID:       u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Status:       u.Status,
		DepartmentID: u.DepartmentID,
	}, nil
}

type grantRow struct {
	roleDatamodel.UserRole
	RoleName string `gorm:"column:role_name"`
}

// ListGrants returns every assignment row of the user; the loader decides which are in force.
func (r *Repository) ListGrants(ctx context.Context, userID int64) ([]access.Grant, error) {
	var rows []grantRow
	err := datastore.Conn(ctx, r.db).
		Table("user_roles").
		Select("user_roles.*, roles.name AS role_name").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("user_roles.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	grants := make([]access.Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, access.Grant{
			AssignmentID: row.ID,
			RoleID:       row.RoleID,
			RoleName:     row.RoleName,
			ValidFrom:    row.ValidFrom,
			ValidTo:      row.ValidTo,
		})
	}
	return grants, nil
}

func (r *Repository) PermissionActions(ctx context.Context, roleIDs []int64) ([]string, error) {
	var actions []string
	err := datastore.Conn(ctx, r.db).
		Table("permissions").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id IN ?", roleIDs).
		Pluck("permissions.action", &actions).Error
	return actions, err
}
