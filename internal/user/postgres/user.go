package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) withDepartment(ctx context.Context) *gorm.DB {
	return datastore.Conn(ctx, r.db).
		Table("users").
		Select("users.*, departments.name AS department_name").
		Joins("LEFT JOIN departments ON departments.id = users.department_id")
}

func (r *UserRepository) List(ctx context.Context, filter user.Filter) ([]*user.Row, error) {
	query := r.withDepartment(ctx)
	if filter.Status != "" {
		query = query.Where("users.status = ?", filter.Status)
	}
	if filter.DepartmentID != nil {
		query = query.Where("users.department_id = ?", *filter.DepartmentID)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(users.name) LIKE ? OR LOWER(users.email) LIKE ? OR LOWER(users.employee_number) LIKE ?", like, like, like)
	}

	var rows []*user.Row
	err := query.Order("users.name ASC, users.id ASC").Scan(&rows).Error
	return rows, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.Row, error) {
	var rows []*user.Row
	if err := r.withDepartment(ctx).Where("users.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	return r.first(datastore.Conn(ctx, r.db).Where("LOWER(email) = LOWER(?)", email))
}

func (r *UserRepository) FindByEmployeeNumber(ctx context.Context, number string) (*userDatamodel.User, error) {
	return r.first(datastore.Conn(ctx, r.db).Where("UPPER(employee_number) = UPPER(?)", number))
}

func (r *UserRepository) first(query *gorm.DB) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := query.First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := datastore.Conn(ctx, r.db).Model(&departmentDatamodel.Department{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	return datastore.Conn(ctx, r.db).Create(u).Error
}

func (r *UserRepository) Update(ctx context.Context, u *userDatamodel.User) error {
	return datastore.Conn(ctx, r.db).Save(u).Error
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	result := datastore.Conn(ctx, r.db).Model(&userDatamodel.User{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Where("id = ?", id).Delete(&userDatamodel.User{}).Error
}

func (r *UserRepository) GetEmployment(ctx context.Context, userID int64) (*userDatamodel.Employment, error) {
	var e userDatamodel.Employment
	err := datastore.Conn(ctx, r.db).Where("user_id = ?", userID).Order("id DESC").First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *UserRepository) SaveEmployment(ctx context.Context, e *userDatamodel.Employment) error {
	return datastore.Conn(ctx, r.db).Save(e).Error
}

func (r *UserRepository) DeleteEmployment(ctx context.Context, userID int64) (int64, error) {
	result := datastore.Conn(ctx, r.db).Where("user_id = ?", userID).Delete(&userDatamodel.Employment{})
	return result.RowsAffected, result.Error
}

func (r *UserRepository) DeleteRoleAssignments(ctx context.Context, userID int64) (int64, error) {
	result := datastore.Conn(ctx, r.db).Where("user_id = ?", userID).Delete(&roleDatamodel.UserRole{})
	return result.RowsAffected, result.Error
}

type userRoleName struct {
	UserID int64  `gorm:"column:user_id"`
	Name   string `gorm:"column:name"`
}

// ActiveRoleNames returns, per user, the names of roles in force on day.
func (r *UserRepository) ActiveRoleNames(ctx context.Context, userIDs []int64, day time.Time) (map[int64][]string, error) {
	result := make(map[int64][]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var rows []userRoleName
	err := datastore.Conn(ctx, r.db).
		Table("user_roles").
		Select("user_roles.user_id, roles.name").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id IN ?", userIDs).
		Where("user_roles.valid_from <= ? AND (user_roles.valid_to IS NULL OR user_roles.valid_to > ?)", day, day).
		Order("roles.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.UserID] = append(result[row.UserID], row.Name)
	}
	return result, nil
}

func (r *UserRepository) PendingStartedBy(ctx context.Context, day time.Time) ([]int64, error) {
	var ids []int64
	err := datastore.Conn(ctx, r.db).
		Table("users").
		Joins("JOIN employment ON employment.user_id = users.id").
		Where("users.status = ? AND employment.start_date <= ?", string(user.StatusPending), day).
		Distinct().
		Pluck("users.id", &ids).Error
	return ids, err
}

func (r *UserRepository) ContractsEndedBefore(ctx context.Context, day time.Time) ([]int64, error) {
	var ids []int64
	err := datastore.Conn(ctx, r.db).
		Table("users").
		Joins("JOIN employment ON employment.user_id = users.id").
		Where("users.status <> ? AND employment.end_date IS NOT NULL AND employment.end_date < ?", string(user.StatusInactive), day).
		Distinct().
		Pluck("users.id", &ids).Error
	return ids, err
}
