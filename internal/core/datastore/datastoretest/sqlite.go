// Package datastoretest opens in-memory databases for repository and integration tests.
package datastoretest

import (
	"time"

	auditDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/audit"
	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite returns a migrated in-memory database. The pool is pinned to one
// connection because every new sqlite ":memory:" connection is a fresh database.
func OpenSQLite() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&departmentDatamodel.Department{},
		&userDatamodel.User{},
		&userDatamodel.Employment{},
		&roleDatamodel.Role{},
		&roleDatamodel.Permission{},
		&roleDatamodel.RolePermission{},
		&roleDatamodel.UserRole{},
		&auditDatamodel.AuditLog{},
		&auditDatamodel.LoginEvent{},
	)
	if err != nil {
		return nil, err
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, err
		}
	}
	return db, nil
}

// indexes mirror the expression and partial indexes of the postgres migrations.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_departments_code_upper ON departments (UPPER(code))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_departments_name_lower ON departments (LOWER(name))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name_lower ON roles (LOWER(name))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_roles_open ON user_roles (user_id, role_id) WHERE valid_to IS NULL`,
}
