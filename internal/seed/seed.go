// Package seed loads the reference data a fresh installation needs: the
// standard departments, the permission catalogue, three roles and an
// administrator account. Running it again changes nothing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
)

const (
	AdminEmail    = "admin@company.com"
	AdminPassword = "admin123"
	AdminRole     = "Administrator"
)

var departments = []departmentDatamodel.Department{
	{Code: "IT", Name: "Information Technology", Description: "Systems and infrastructure"},
	{Code: "HR", Name: "Human Resources", Description: "People operations"},
	{Code: "FIN", Name: "Finance", Description: "Accounting and payroll"},
}

var permissions = []roleDatamodel.Permission{
	{Name: "Full Administrative Access", Action: "admin:all", Description: "Grants every action"},
	{Name: "Create Users", Action: "user:create"},
	{Name: "View Users", Action: "user:read"},
	{Name: "Update Users", Action: "user:update"},
	{Name: "Delete Users", Action: "user:delete"},
	{Name: "Create Departments", Action: "department:create"},
	{Name: "View Departments", Action: "department:read"},
	{Name: "Update Departments", Action: "department:update"},
	{Name: "Delete Departments", Action: "department:delete"},
	{Name: "Create Roles", Action: "role:create"},
	{Name: "View Roles", Action: "role:read"},
	{Name: "Update Roles", Action: "role:update"},
	{Name: "Delete Roles", Action: "role:delete"},
	{Name: "Assign Roles", Action: "role:assign"},
	{Name: "Revoke Roles", Action: "role:revoke"},
	{Name: "View Audit Log", Action: "audit:read"},
	{Name: "Export Audit Log", Action: "audit:export"},
	{Name: "View Dashboard", Action: "dashboard:read"},
}

type roleSeed struct {
	name        string
	description string
	actions     []string
}

var roles = []roleSeed{
	{AdminRole, "Full system access", []string{"admin:all"}},
	{"HR Manager", "Human Resources Manager", []string{
		"user:create", "user:read", "user:update", "department:read",
		"role:read", "role:assign", "role:revoke", "audit:read", "dashboard:read",
	}},
	{"Viewer", "Read-only access", []string{"user:read", "department:read", "role:read", "dashboard:read"}},
}

type Options struct {
	BCryptCost int
	Now        func() time.Time
}

// Run seeds inside one transaction.
func Run(ctx context.Context, db *gorm.DB, opts Options, logger *slog.Logger) error {
	if opts.BCryptCost == 0 {
		opts.BCryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return datastore.NewTransactor(db).WithinTransaction(ctx, func(ctx context.Context) error {
		tx := datastore.Conn(ctx, db)

		deptIDs := make(map[string]int64, len(departments))
		for _, d := range departments {
			row := d
			if err := tx.Where("code = ?", row.Code).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed department %s: %w", d.Code, err)
			}
			deptIDs[row.Code] = row.ID
		}

		permIDs := make(map[string]int64, len(permissions))
		for _, p := range permissions {
			row := p
			if err := tx.Where("action = ?", row.Action).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Action, err)
			}
			permIDs[row.Action] = row.ID
		}

		roleIDs := make(map[string]int64, len(roles))
		for _, r := range roles {
			row := roleDatamodel.Role{Name: r.name, Description: r.description}
			if err := tx.Where("name = ?", row.Name).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", r.name, err)
			}
			roleIDs[r.name] = row.ID

			for _, action := range r.actions {
				link := roleDatamodel.RolePermission{RoleID: row.ID, PermissionID: permIDs[action]}
				err := tx.Where("role_id = ? AND permission_id = ?", link.RoleID, link.PermissionID).FirstOrCreate(&link).Error
				if err != nil {
					return fmt.Errorf("seed permission %s of role %s: %w", action, r.name, err)
				}
			}
		}

		var admin userDatamodel.User
		err := tx.Where("email = ?", AdminEmail).First(&admin).Error
		switch {
		case err == nil:
			logger.Info("administrator already exists", "email", AdminEmail)
		case errors.Is(err, gorm.ErrRecordNotFound):
			hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), opts.BCryptCost)
			if err != nil {
				return fmt.Errorf("hash administrator password: %w", err)
			}
			itID := deptIDs["IT"]
			admin = userDatamodel.User{
				EmployeeNumber: "ADM001",
				Name:           "System Administrator",
				Email:          AdminEmail,
				PasswordHash:   string(hash),
				Status:         "active",
				DepartmentID:   &itID,
			}
			if err := tx.Create(&admin).Error; err != nil {
				return fmt.Errorf("seed administrator: %w", err)
			}
			employment := userDatamodel.Employment{
				UserID:       admin.ID,
				StartDate:    dates.Day(opts.Now()),
				ContractType: "full_time",
			}
			if err := tx.Create(&employment).Error; err != nil {
				return fmt.Errorf("seed administrator employment: %w", err)
			}
			logger.Info("seeded administrator", "email", AdminEmail)
		default:
			return fmt.Errorf("look up administrator: %w", err)
		}

		var open int64
		err = tx.Model(&roleDatamodel.UserRole{}).
			Where("user_id = ? AND role_id = ? AND valid_to IS NULL", admin.ID, roleIDs[AdminRole]).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("check administrator role: %w", err)
		}
		if open == 0 {
			grant := roleDatamodel.UserRole{
				UserID:    admin.ID,
				RoleID:    roleIDs[AdminRole],
				ValidFrom: dates.Day(opts.Now()),
			}
			if err := tx.Create(&grant).Error; err != nil {
				return fmt.Errorf("grant administrator role: %w", err)
			}
		}
		return nil
	})
}
