package audit_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/employee-management/internal/audit"
	auditPostgres "github.com/frahmantamala/employee-management/internal/audit/postgres"
	auditDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/audit"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/employee-management/pkg/export"
)

var _ = Describe("Service", func() {
	var (
		db      *gorm.DB
		service *audit.Service
		ctx     context.Context
		now     time.Time
		admin   *userDatamodel.User
	)

	strPtr := func(s string) *string { return &s }

	addLogin := func(success bool, ip *string, userID *int64, at time.Time) {
		row := &auditDatamodel.LoginEvent{UserID: userID, Success: success, IPAddress: ip, OccurredAt: at}
		Expect(db.Create(row).Error).NotTo(HaveOccurred())
	}

	addEntry := func(action string, actor *int64, at time.Time) {
		row := &auditDatamodel.AuditLog{UserID: actor, Action: action, Status: audit.StatusSuccess, CreatedAt: at}
		Expect(db.Create(row).Error).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
		repo := auditPostgres.NewAuditRepository(db)
		recorder := audit.NewRecorder(repo, nil, nil, quietLogger()).WithClock(func() time.Time { return now })
		service = audit.NewService(repo, recorder, 100, quietLogger())
		ctx = context.Background()

		admin = &userDatamodel.User{
			EmployeeNumber: "ADM001",
			Name:           "System Administrator",
			Email:          "admin@company.com",
			PasswordHash:   "x",
			Status:         "active",
		}
		Expect(db.Create(admin).Error).NotTo(HaveOccurred())
	})

	Describe("SecurityAlerts", func() {
		It("returns exactly one all clear alert when nothing happened", func() {
			addLogin(true, strPtr("10.0.0.1"), &admin.ID, now.Add(-10*time.Minute))
			addLogin(false, strPtr("10.0.0.1"), nil, now.Add(-3*time.Hour))

			alerts, err := service.SecurityAlerts(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ID).To(Equal("all_clear"))
			Expect(alerts[0].Type).To(Equal("success"))
			Expect(alerts[0].Title).To(Equal("All systems operational"))
		})

		It("warns about failed logins in the last hour and escalates above ten", func() {
			for i := 0; i < 3; i++ {
				addLogin(false, nil, nil, now.Add(-time.Duration(i+1)*time.Minute))
			}
			alerts, err := service.SecurityAlerts(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ID).To(Equal("failed_logins"))
			Expect(alerts[0].Type).To(Equal("warning"))

			for i := 0; i < 8; i++ {
				addLogin(false, nil, nil, now.Add(-time.Duration(i+10)*time.Minute))
			}
			alerts, err = service.SecurityAlerts(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts[0].Type).To(Equal("danger"))
			Expect(alerts[0].Title).To(Equal("11 failed login attempts in the last hour"))
		})

		It("reports blocked users in the last day", func() {
			addEntry(audit.ActionUserBlocked, &admin.ID, now.Add(-5*time.Hour))
			addEntry(audit.ActionUserBlocked, &admin.ID, now.Add(-30*time.Hour))

			alerts, err := service.SecurityAlerts(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ID).To(Equal("blocked_users"))
			Expect(alerts[0].Title).To(Equal("1 users blocked in the last 24 hours"))
		})

		It("flags addresses with more than five failures in a day", func() {
			for i := 0; i < 6; i++ {
				addLogin(false, strPtr("203.0.113.9"), nil, now.Add(-time.Duration(i+2)*time.Hour))
			}
			for i := 0; i < 5; i++ {
				addLogin(false, strPtr("203.0.113.10"), nil, now.Add(-time.Duration(i+2)*time.Hour))
			}
			for i := 0; i < 7; i++ {
				addLogin(false, nil, nil, now.Add(-time.Duration(i+2)*time.Hour))
			}

			alerts, err := service.SecurityAlerts(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ID).To(Equal("suspicious_ips"))
			Expect(alerts[0].Type).To(Equal("danger"))
			Expect(alerts[0].Title).To(Equal("1 IP addresses with excessive failed login attempts"))
		})
	})

	Describe("RecentActivity", func() {
		It("merges both logs newest first and truncates", func() {
			addEntry(audit.ActionUserCreated, &admin.ID, now.Add(-1*time.Minute))
			addEntry(audit.ActionRoleAssigned, nil, now.Add(-3*time.Minute))
			addLogin(true, nil, &admin.ID, now.Add(-2*time.Minute))
			addLogin(false, nil, nil, now.Add(-4*time.Minute))

			feed, err := service.RecentActivity(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(feed).To(HaveLen(3))

			Expect(feed[0].ID).To(HavePrefix("audit_"))
			Expect(feed[0].Type).To(Equal("audit"))
			Expect(feed[0].User).To(Equal("System Administrator"))

			Expect(feed[1].ID).To(HavePrefix("login_"))
			Expect(feed[1].Action).To(Equal("Login Success"))
			Expect(*feed[1].Target).To(Equal("admin@company.com"))

			Expect(feed[2].User).To(Equal("System User"))
		})

		It("labels anonymous failed logins", func() {
			addLogin(false, nil, nil, now.Add(-time.Minute))

			feed, err := service.RecentActivity(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(feed).To(HaveLen(1))
			Expect(feed[0].Action).To(Equal("Login Failed"))
			Expect(feed[0].User).To(Equal("Unknown User"))
			Expect(feed[0].Status).To(Equal(audit.StatusFailed))
		})
	})

	Describe("ListAuditLogs", func() {
		It("filters by action and resolves actor names", func() {
			addEntry(audit.ActionUserCreated, &admin.ID, now.Add(-2*time.Hour))
			addEntry(audit.ActionUserBlocked, &admin.ID, now.Add(-1*time.Hour))

			entries, err := service.ListAuditLogs(ctx, audit.Filter{Action: audit.ActionUserBlocked})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ActorName).To(Equal("System Administrator"))
			Expect(entries[0].ActionLabel).To(Equal("Block User"))
		})
	})

	Describe("Export", func() {
		It("renders a dated csv file and audits the export", func() {
			addEntry(audit.ActionUserCreated, &admin.ID, now.Add(-2*time.Hour))

			file, err := service.Export(ctx, export.FormatCSV, audit.Filter{}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(file.Name).To(Equal("audit-export-2024-05-20.csv"))
			Expect(file.ContentType).To(Equal("text/csv"))
			Expect(file.Rows).To(Equal(1))

			records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0][0]).To(Equal("Timestamp"))
			Expect(records[1][1]).To(Equal("Create User"))
			Expect(records[1][2]).To(Equal("System Administrator"))

			var exported int64
			Expect(db.Model(&auditDatamodel.AuditLog{}).Where("action = ?", audit.ActionAuditExported).Count(&exported).Error).NotTo(HaveOccurred())
			Expect(exported).To(Equal(int64(1)))
		})

		It("names xlsx files with their extension", func() {
			file, err := service.Export(ctx, export.FormatXLSX, audit.Filter{}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(file.Name).To(Equal("audit-export-2024-05-20.xlsx"))
			Expect(file.Data).NotTo(BeEmpty())
		})
	})
})
