package postgres

import (
	"context"
	"errors"

	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/department"
	"gorm.io/gorm"
)

type DepartmentRepository struct {
	db *gorm.DB
}

func NewDepartmentRepository(db *gorm.DB) department.RepositoryAPI {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) GetAll(ctx context.Context) ([]*departmentDatamodel.Department, error) {
	var departments []*departmentDatamodel.Department
	err := datastore.Conn(ctx, r.db).Order("name ASC").Find(&departments).Error
	return departments, err
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*departmentDatamodel.Department, error) {
	return r.first(datastore.Conn(ctx, r.db).Where("id = ?", id))
}

func (r *DepartmentRepository) FindByCode(ctx context.Context, code string) (*departmentDatamodel.Department, error) {
	return r.first(datastore.Conn(ctx, r.db).Where("UPPER(code) = UPPER(?)", code))
}

func (r *DepartmentRepository) FindByName(ctx context.Context, name string) (*departmentDatamodel.Department, error) {
	return r.first(datastore.Conn(ctx, r.db).Where("LOWER(name) = LOWER(?)", name))
}

func (r *DepartmentRepository) first(query *gorm.DB) (*departmentDatamodel.Department, error) {
	var d departmentDatamodel.Department
	err := query.First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

type departmentCount struct {
	DepartmentID int64 `gorm:"column:department_id"`
	Total        int64 `gorm:"column:total"`
}

func (r *DepartmentRepository) UserCounts(ctx context.Context) (map[int64]int64, error) {
	var rows []departmentCount
	err := datastore.Conn(ctx, r.db).
		Model(&userDatamodel.User{}).
		Select("department_id, COUNT(*) AS total").
		Where("department_id IS NOT NULL").
		Group("department_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.DepartmentID] = row.Total
	}
	return counts, nil
}

func (r *DepartmentRepository) CountUsers(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).Model(&userDatamodel.User{}).Where("department_id = ?", id).Count(&count).Error
	return count, err
}

func (r *DepartmentRepository) Create(ctx context.Context, d *departmentDatamodel.Department) error {
	return datastore.Conn(ctx, r.db).Create(d).Error
}

func (r *DepartmentRepository) Update(ctx context.Context, d *departmentDatamodel.Department) error {
	return datastore.Conn(ctx, r.db).Save(d).Error
}

func (r *DepartmentRepository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Where("id = ?", id).Delete(&departmentDatamodel.Department{}).Error
}
