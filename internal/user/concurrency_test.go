package user_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	auditPostgres "github.com/frahmantamala/employee-management/internal/audit/postgres"
	"github.com/frahmantamala/employee-management/internal/user"
	userPostgres "github.com/frahmantamala/employee-management/internal/user/postgres"
)

// noLockTransactor runs fn without a transaction, so two callers see each
// other's writes the way overlapping READ COMMITTED transactions do.
type noLockTransactor struct{}

func (noLockTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// interleavingRepo runs between once, right after the first user read, and
// then hands back the row as it was before between ran.
type interleavingRepo struct {
	user.RepositoryAPI
	between func()
}

func (r *interleavingRepo) GetByID(ctx context.Context, id int64) (*user.Row, error) {
	row, err := r.RepositoryAPI.GetByID(ctx, id)
	if err == nil && r.between != nil {
		between := r.between
		r.between = nil
		between()
	}
	return row, err
}

var _ = Describe("Overlapping status changes", func() {
	var (
		f       *fixture
		repo    *interleavingRepo
		service *user.Service
		now     time.Time
	)

	BeforeEach(func() {
		f = newFixture()
		now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }

		repo = &interleavingRepo{RepositoryAPI: userPostgres.NewUserRepository(f.db)}
		recorder := audit.NewRecorder(auditPostgres.NewAuditRepository(f.db), nil, nil, quietLogger()).WithClock(clock)
		service = user.NewService(repo, noLockTransactor{}, recorder, f.bus,
			user.Config{BCryptCost: bcrypt.MinCost}, quietLogger()).WithClock(clock)
	})

	It("activates a pending user once when two sweeps overlap", func() {
		hana := f.create("EMP010", "Hana Lee", "hana@company.com", func(d *user.CreateUserDTO) {
			d.StartDate = "2024-06-10"
		})
		Expect(hana.Status).To(Equal(user.StatusPending))

		var inner int
		repo.between = func() {
			n, err := service.ActivatePendingUsers(context.Background(), now)
			Expect(err).NotTo(HaveOccurred())
			inner = n
		}

		outer, err := service.ActivatePendingUsers(context.Background(), now)
		Expect(err).NotTo(HaveOccurred())
		Expect(inner).To(Equal(1))
		Expect(outer).To(BeZero())

		Expect(f.status(hana.ID)).To(Equal(user.StatusActive))
		Expect(f.entries(audit.ActionUserActivated)).To(HaveLen(1))
	})

	It("rejects a block that lost the race to a deactivation", func() {
		ivan := f.create("EMP011", "Ivan Petrov", "ivan@company.com")

		repo.between = func() {
			_, err := service.Deactivate(context.Background(), ivan.ID, nil)
			Expect(err).NotTo(HaveOccurred())
		}

		_, err := service.Block(context.Background(), ivan.ID, "Policy violation", nil)
		Expect(err).To(HaveOccurred())
		Expect(appCode(err)).To(Equal(internal.ErrCodeStatusChanged))

		Expect(f.status(ivan.ID)).To(Equal(user.StatusInactive))
		Expect(f.entries(audit.ActionUserDeactivated)).To(HaveLen(1))
		Expect(f.entries(audit.ActionUserBlocked)).To(BeEmpty())
	})

	It("rejects a status edit that lost the race", func() {
		jo := f.create("EMP012", "Jo Kim", "jo@company.com")

		repo.between = func() {
			_, err := service.Block(context.Background(), jo.ID, "Locked out", nil)
			Expect(err).NotTo(HaveOccurred())
		}

		inactive := string(user.StatusInactive)
		_, err := service.Update(context.Background(), jo.ID, user.UpdateUserDTO{Status: &inactive}, nil)
		Expect(appCode(err)).To(Equal(internal.ErrCodeStatusChanged))

		Expect(f.status(jo.ID)).To(Equal(user.StatusBlocked))
		Expect(f.entries(audit.ActionUserDeactivated)).To(BeEmpty())
	})
})
