package role_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	auditPostgres "github.com/frahmantamala/employee-management/internal/audit/postgres"
	auditDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/audit"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/employee-management/internal/role"
	rolePostgres "github.com/frahmantamala/employee-management/internal/role/postgres"
)

func TestRole(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Role Suite")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db      *gorm.DB
	service *role.Service
	clock   *time.Time
}

func newFixture() *fixture {
	db, err := datastoretest.OpenSQLite()
	Expect(err).NotTo(HaveOccurred())

	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	f := &fixture{db: db, clock: &now}
	clock := func() time.Time { return *f.clock }

	recorder := audit.NewRecorder(auditPostgres.NewAuditRepository(db), nil, nil, quietLogger()).WithClock(clock)
	f.service = role.NewService(rolePostgres.NewRoleRepository(db), datastore.NewTransactor(db), recorder, quietLogger()).
		WithClock(clock)
	return f
}

func (f *fixture) user(number, email string) *userDatamodel.User {
	u := &userDatamodel.User{EmployeeNumber: number, Name: "User " + number, Email: email, PasswordHash: "x", Status: "active"}
	Expect(f.db.Create(u).Error).NotTo(HaveOccurred())
	return u
}

func (f *fixture) permission(action string) *roleDatamodel.Permission {
	p := &roleDatamodel.Permission{Name: action, Action: action}
	Expect(f.db.Create(p).Error).NotTo(HaveOccurred())
	return p
}

func (f *fixture) auditCount(action string) int64 {
	var n int64
	Expect(f.db.Model(&auditDatamodel.AuditLog{}).Where("action = ?", action).Count(&n).Error).NotTo(HaveOccurred())
	return n
}

func (f *fixture) openRows(userID, roleID int64) int64 {
	var n int64
	Expect(f.db.Model(&roleDatamodel.UserRole{}).
		Where("user_id = ? AND role_id = ? AND valid_to IS NULL", userID, roleID).
		Count(&n).Error).NotTo(HaveOccurred())
	return n
}

var _ = Describe("Assignment Manager", func() {
	var (
		f     *fixture
		ctx   context.Context
		admin *userDatamodel.User
		alice *userDatamodel.User
		hr    *role.Role
	)

	BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
		admin = f.user("ADM001", "admin@company.com")
		alice = f.user("EMP001", "alice@company.com")

		var err error
		hr, err = f.service.CreateRole(ctx, role.CreateRoleDTO{Name: "HR Manager", Description: "People team"})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Assign", func() {
		It("inserts an open assignment from today and audits it", func() {
			assignment, err := f.service.Assign(ctx, alice.ID, hr.ID, &admin.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assignment.ValidFrom).To(Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)))
			Expect(assignment.ValidTo).To(BeNil())
			Expect(assignment.Active).To(BeTrue())
			Expect(assignment.RoleName).To(Equal("HR Manager"))
			Expect(*assignment.GrantedBy).To(Equal(admin.ID))

			Expect(f.auditCount(audit.ActionRoleAssigned)).To(Equal(int64(1)))
		})

		It("rejects a second open assignment of the same role", func() {
			_, err := f.service.Assign(ctx, alice.ID, hr.ID, &admin.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.service.Assign(ctx, alice.ID, hr.ID, &admin.ID)
			Expect(errors.Is(err, internal.ErrRoleAlreadyGranted)).To(BeTrue())
			Expect(f.openRows(alice.ID, hr.ID)).To(Equal(int64(1)))
			Expect(f.auditCount(audit.ActionRoleAssigned)).To(Equal(int64(1)))
		})

		It("reports missing users and roles", func() {
			_, err := f.service.Assign(ctx, 9999, hr.ID, nil)
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())

			_, err = f.service.Assign(ctx, alice.ID, 9999, nil)
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())
		})
	})

	Describe("Revoke", func() {
		It("closes the open row with valid_to today and leaves at most one open row", func() {
			_, err := f.service.Assign(ctx, alice.ID, hr.ID, &admin.ID)
			Expect(err).NotTo(HaveOccurred())

			revoked, err := f.service.Revoke(ctx, alice.ID, hr.ID, &admin.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked).NotTo(BeNil())
			Expect(*revoked.ValidTo).To(Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)))
			Expect(revoked.Active).To(BeFalse())
			Expect(f.openRows(alice.ID, hr.ID)).To(BeZero())
			Expect(f.auditCount(audit.ActionRoleRevoked)).To(Equal(int64(1)))

			_, err = f.service.Assign(ctx, alice.ID, hr.ID, &admin.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.openRows(alice.ID, hr.ID)).To(Equal(int64(1)))

			history, err := f.service.AssignmentHistory(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0].ValidTo).To(BeNil())
		})

		It("returns nil when nothing is open", func() {
			revoked, err := f.service.Revoke(ctx, alice.ID, hr.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked).To(BeNil())
			Expect(f.auditCount(audit.ActionRoleRevoked)).To(BeZero())
		})
	})

	Describe("UserRoles", func() {
		It("lists only assignments in force", func() {
			viewer, err := f.service.CreateRole(ctx, role.CreateRoleDTO{Name: "Viewer"})
			Expect(err).NotTo(HaveOccurred())

			_, err = f.service.Assign(ctx, alice.ID, hr.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.service.Assign(ctx, alice.ID, viewer.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.service.Revoke(ctx, alice.ID, viewer.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			active, err := f.service.UserRoles(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
			Expect(active[0].RoleName).To(Equal("HR Manager"))
		})

		It("returns not found for unknown users", func() {
			_, err := f.service.UserRoles(ctx, 4242)
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("Roles", func() {
		It("rejects duplicate names case-insensitively with a field error", func() {
			_, err := f.service.CreateRole(ctx, role.CreateRoleDTO{Name: "hr manager"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(409))
			Expect(appErr.FieldErrors()).To(ConsistOf(internal.ValidationError{
				Field: "name", Message: "name already exists", Code: string(internal.ErrCodeDuplicate),
			}))
		})

		It("validates the name", func() {
			_, err := f.service.CreateRole(ctx, role.CreateRoleDTO{Name: " "})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			Expect(appErr.FieldErrors()[0].Field).To(Equal("name"))
		})

		It("updates partially and keeps the description", func() {
			name := "People Manager"
			updated, err := f.service.UpdateRole(ctx, hr.ID, role.UpdateRoleDTO{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("People Manager"))
			Expect(updated.Description).To(Equal("People team"))
			Expect(f.auditCount(audit.ActionRoleUpdated)).To(Equal(int64(1)))
		})

		It("replaces the permission set when an update carries permission ids", func() {
			read := f.permission("user:read")
			create := f.permission("user:create")

			updated, err := f.service.UpdateRole(ctx, hr.ID, role.UpdateRoleDTO{PermissionIDs: &[]int64{create.ID, read.ID}})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Permissions).To(Equal([]string{"user:create", "user:read"}))
			Expect(f.auditCount(audit.ActionRolePermissionsUpdated)).To(Equal(int64(1)))
			Expect(f.auditCount(audit.ActionRoleUpdated)).To(Equal(int64(1)))

			_, err = f.service.UpdateRole(ctx, hr.ID, role.UpdateRoleDTO{PermissionIDs: &[]int64{999}})
			Expect(errors.Is(err, internal.ErrPermissionNotFound)).To(BeTrue())
			reloaded, err := f.service.GetRole(ctx, hr.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Permissions).To(HaveLen(2))
		})

				It("refuses to delete a role with assignments in force", func() {
			_, err := f.service.Assign(ctx, alice.ID, hr.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			err = f.service.DeleteRole(ctx, hr.ID)
			Expect(errors.Is(err, internal.ErrRoleInUse)).To(BeTrue())

			_, err = f.service.GetRole(ctx, hr.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps a role whose assignments are closed so the history survives", func() {
			_, err := f.service.Assign(ctx, alice.ID, hr.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.service.Revoke(ctx, alice.ID, hr.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			err = f.service.DeleteRole(ctx, hr.ID)
			Expect(errors.Is(err, internal.ErrRoleHasHistory)).To(BeTrue())

			history, err := f.service.AssignmentHistory(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(f.auditCount(audit.ActionRoleDeleted)).To(BeZero())
		})

		It("deletes a role that was never assigned along with its permission links", func() {
			read := f.permission("user:read")
			_, err := f.service.SetRolePermissions(ctx, hr.ID, []int64{read.ID}, &admin.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.service.DeleteRole(ctx, hr.ID)).To(Succeed())

			_, err = f.service.GetRole(ctx, hr.ID)
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())

			var links int64
			Expect(f.db.Model(&roleDatamodel.RolePermission{}).Where("role_id = ?", hr.ID).Count(&links).Error).NotTo(HaveOccurred())
			Expect(links).To(BeZero())
			Expect(f.auditCount(audit.ActionRoleDeleted)).To(Equal(int64(1)))
		})

		It("lists roles with permissions and active user counts", func() {
			read := f.permission("user:read")
			create := f.permission("user:create")
			_, err := f.service.SetRolePermissions(ctx, hr.ID, []int64{read.ID, create.ID, read.ID}, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.service.Assign(ctx, alice.ID, hr.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			roles, err := f.service.ListRoles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(1))
			Expect(roles[0].Permissions).To(Equal([]string{"user:create", "user:read"}))
			Expect(roles[0].ActiveUsers).To(Equal(int64(1)))
		})
	})

	Describe("SetRolePermissions", func() {
		It("replaces the set and audits old and new actions", func() {
			read := f.permission("user:read")
			del := f.permission("user:delete")

			_, err := f.service.SetRolePermissions(ctx, hr.ID, []int64{read.ID}, nil)
			Expect(err).NotTo(HaveOccurred())
			updated, err := f.service.SetRolePermissions(ctx, hr.ID, []int64{del.ID}, &admin.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Permissions).To(Equal([]string{"user:delete"}))

			var entry auditDatamodel.AuditLog
			Expect(f.db.Where("action = ?", audit.ActionRolePermissionsUpdated).Order("id DESC").First(&entry).Error).NotTo(HaveOccurred())
			Expect(string(entry.OldValues)).To(MatchJSON(`{"permissions":["user:read"]}`))
			Expect(string(entry.NewValues)).To(MatchJSON(`{"permissions":["user:delete"]}`))
		})

		It("rejects unknown permissions and keeps the old set", func() {
			read := f.permission("user:read")
			_, err := f.service.SetRolePermissions(ctx, hr.ID, []int64{read.ID}, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.service.SetRolePermissions(ctx, hr.ID, []int64{read.ID, 777}, nil)
			Expect(errors.Is(err, internal.ErrPermissionNotFound)).To(BeTrue())

			current, err := f.service.GetRole(ctx, hr.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Permissions).To(Equal([]string{"user:read"}))
		})
	})

	Describe("Permissions", func() {
		It("creates permissions and rejects duplicate actions", func() {
			created, err := f.service.CreatePermission(ctx, role.CreatePermissionDTO{Name: "Read reports", Action: "Report:Read"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Action).To(Equal("report:read"))

			_, err = f.service.CreatePermission(ctx, role.CreatePermissionDTO{Name: "Other", Action: "report:read"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldErrors()[0].Field).To(Equal("action"))

			permissions, err := f.service.ListPermissions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(permissions).To(HaveLen(1))
		})

		It("rejects malformed actions", func() {
			_, err := f.service.CreatePermission(ctx, role.CreatePermissionDTO{Name: "Bad", Action: "everything"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldErrors()[0].Field).To(Equal("action"))
		})
	})
})
