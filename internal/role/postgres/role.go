package postgres

import (
	"context"
	"errors"
	"time"

	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/role"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) ListRoles(ctx context.Context) ([]*roleDatamodel.Role, error) {
	var roles []*roleDatamodel.Role
	err := datastore.Conn(ctx, r.db).Order("name ASC").Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) GetRole(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	var rl roleDatamodel.Role
	err := datastore.Conn(ctx, r.db).Where("id = ?", id).First(&rl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rl, nil
}

func (r *RoleRepository) FindRoleByName(ctx context.Context, name string) (*roleDatamodel.Role, error) {
	var rl roleDatamodel.Role
	err := datastore.Conn(ctx, r.db).Where("LOWER(name) = LOWER(?)", name).First(&rl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rl, nil
}

func (r *RoleRepository) CreateRole(ctx context.Context, rl *roleDatamodel.Role) error {
	return datastore.Conn(ctx, r.db).Create(rl).Error
}

func (r *RoleRepository) UpdateRole(ctx context.Context, rl *roleDatamodel.Role) error {
	return datastore.Conn(ctx, r.db).Save(rl).Error
}

func (r *RoleRepository) DeleteRole(ctx context.Context, id int64) error {
	conn := datastore.Conn(ctx, r.db)
	if err := conn.Where("role_id = ?", id).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
		return err
	}
	return conn.Where("id = ?", id).Delete(&roleDatamodel.Role{}).Error
}

type roleAction struct {
	RoleID int64  `gorm:"column:role_id"`
	Action string `gorm:"column:action"`
}

func (r *RoleRepository) PermissionActionsByRole(ctx context.Context, roleIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}

	var rows []roleAction
	err := datastore.Conn(ctx, r.db).
		Table("role_permissions").
		Select("role_permissions.role_id, permissions.action").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("role_permissions.role_id IN ?", roleIDs).
		Order("permissions.action ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.RoleID] = append(result[row.RoleID], row.Action)
	}
	return result, nil
}

type roleCount struct {
	RoleID int64 `gorm:"column:role_id"`
	Total  int64 `gorm:"column:total"`
}

// CountActiveAssignments counts assignments still in force on day per role.
func (r *RoleRepository) CountActiveAssignments(ctx context.Context, roleIDs []int64, day time.Time) (map[int64]int64, error) {
	result := make(map[int64]int64, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}

	var rows []roleCount
	err := datastore.Conn(ctx, r.db).
		Model(&roleDatamodel.UserRole{}).
		Select("role_id, COUNT(*) AS total").
		Where("role_id IN ? AND (valid_to IS NULL OR valid_to > ?)", roleIDs, day).
		Group("role_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.RoleID] = row.Total
	}
	return result, nil
}

func (r *RoleRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	conn := datastore.Conn(ctx, r.db)
	if err := conn.Where("role_id = ?", roleID).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return nil
	}

	rows := make([]roleDatamodel.RolePermission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		rows = append(rows, roleDatamodel.RolePermission{RoleID: roleID, PermissionID: id})
	}
	return conn.Create(&rows).Error
}

// CountAssignments counts every assignment row of the role, open or closed.
func (r *RoleRepository) CountAssignments(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	err := datastore.Conn(ctx, r.db).Model(&roleDatamodel.UserRole{}).Where("role_id = ?", roleID).Count(&n).Error
	return n, err
}

func (r *RoleRepository) ListPermissions(ctx context.Context) ([]*roleDatamodel.Permission, error) {
	var permissions []*roleDatamodel.Permission
	err := datastore.Conn(ctx, r.db).Order("action ASC").Find(&permissions).Error
	return permissions, err
}

func (r *RoleRepository) GetPermissionsByIDs(ctx context.Context, ids []int64) ([]*roleDatamodel.Permission, error) {
	var permissions []*roleDatamodel.Permission
	err := datastore.Conn(ctx, r.db).Where("id IN ?", ids).Find(&permissions).Error
	return permissions, err
}

// FindPermission returns a permission whose action or name collides with the arguments.
func (r *RoleRepository) FindPermission(ctx context.Context, name, action string) (*roleDatamodel.Permission, error) {
	var p roleDatamodel.Permission
	err := datastore.Conn(ctx, r.db).
		Where("action = ? OR LOWER(name) = LOWER(?)", action, name).
		Order("id ASC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *RoleRepository) CreatePermission(ctx context.Context, p *roleDatamodel.Permission) error {
	return datastore.Conn(ctx, r.db).Create(p).Error
}

func (r *RoleRepository) GetUserName(ctx context.Context, userID int64) (string, bool, error) {
	var u userDatamodel.User
	err := datastore.Conn(ctx, r.db).Select("id", "name").Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return u.Name, true, nil
}

func (r *RoleRepository) FindOpenAssignment(ctx context.Context, userID, roleID int64) (*roleDatamodel.UserRole, error) {
	var ur roleDatamodel.UserRole
	err := datastore.Conn(ctx, r.db).
		Where("user_id = ? AND role_id = ? AND valid_to IS NULL", userID, roleID).
		First(&ur).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ur, nil
}

func (r *RoleRepository) CreateAssignment(ctx context.Context, ur *roleDatamodel.UserRole) error {
	return datastore.Conn(ctx, r.db).Create(ur).Error
}

func (r *RoleRepository) CloseAssignment(ctx context.Context, id int64, validTo time.Time) error {
	return datastore.Conn(ctx, r.db).
		Model(&roleDatamodel.UserRole{}).
		Where("id = ?", id).
		Update("valid_to", validTo).Error
}

func (r *RoleRepository) ListAssignments(ctx context.Context, userID int64) ([]*role.AssignmentRow, error) {
	var rows []*role.AssignmentRow
	err := datastore.Conn(ctx, r.db).
		Table("user_roles").
		Select("user_roles.*, roles.name AS role_name").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("user_roles.valid_from DESC, user_roles.id DESC").
		Scan(&rows).Error
	return rows, err
}
