package user_test

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/user"
)

var _ = Describe("Lifecycle sweeps", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	BeforeEach(func() {
		f = newFixture()
		// the sweeps must not attribute their changes to the caller
		ctx = internal.ContextWithUserID(context.Background(), 7)
	})

	Describe("ActivatePendingUsers", func() {
		It("activates users once their start date is reached", func() {
			bob := f.create("EMP002", "Bob Jones", "bob@company.com", func(d *user.CreateUserDTO) {
				d.StartDate = "2024-06-10"
			})
			Expect(bob.Status).To(Equal(user.StatusPending))

			n, err := f.service.ActivatePendingUsers(ctx, time.Date(2024, 6, 9, 23, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			n, err = f.service.ActivatePendingUsers(ctx, time.Date(2024, 6, 10, 0, 30, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(f.status(bob.ID)).To(Equal(user.StatusActive))

			entries := f.entries(audit.ActionUserActivated)
			Expect(entries).To(HaveLen(1))
			Expect(*entries[0].Details).To(Equal("User activated: start date reached"))
			Expect(entries[0].UserID).To(BeNil())

			n, err = f.service.ActivatePendingUsers(ctx, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("DeactivateExpiredContracts", func() {
		It("deactivates users whose contract ended before today", func() {
			carol := f.create("EMP003", "Carol White", "carol@company.com", func(d *user.CreateUserDTO) {
				d.StartDate = "2024-01-01"
				d.EndDate = "2024-06-02"
				d.ContractType = user.ContractContract
			})
			dan := f.create("EMP004", "Dan Brown", "dan@company.com", func(d *user.CreateUserDTO) {
				d.StartDate = "2024-01-01"
				d.EndDate = "2024-06-03"
				d.ContractType = user.ContractIntern
			})

			n, err := f.service.DeactivateExpiredContracts(ctx, *f.clock)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(f.status(carol.ID)).To(Equal(user.StatusInactive))
			Expect(f.status(dan.ID)).To(Equal(user.StatusActive))

			entries := f.entries(audit.ActionUserContractExpired)
			Expect(entries).To(HaveLen(1))
			Expect(*entries[0].TargetUserID).To(Equal(carol.ID))
			Expect(*entries[0].Details).To(Equal("User deactivated: contract ended on 2024-06-02"))
		})

		It("also expires blocked users", func() {
			erin := f.create("EMP005", "Erin Gray", "erin@company.com", func(d *user.CreateUserDTO) {
				d.StartDate = "2024-01-01"
				d.EndDate = "2024-06-01"
			})
			_, err := f.service.Block(context.Background(), erin.ID, "Pending investigation", nil)
			Expect(err).NotTo(HaveOccurred())

			n, err := f.service.DeactivateExpiredContracts(ctx, *f.clock)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(f.status(erin.ID)).To(Equal(user.StatusInactive))
		})
	})

	Describe("RunAllChecks", func() {
		It("never activates a pending user whose contract already ended", func() {
			frank := f.create("EMP006", "Frank Green", "frank@company.com", func(d *user.CreateUserDTO) {
				d.StartDate = "2024-06-05"
				d.EndDate = "2024-06-06"
			})
			Expect(frank.Status).To(Equal(user.StatusPending))

			result, err := f.service.RunAllChecks(ctx, time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(user.SweepResult{Activated: 0, Deactivated: 1}))
			Expect(f.status(frank.ID)).To(Equal(user.StatusInactive))
			Expect(f.entries(audit.ActionUserActivated)).To(BeEmpty())
		})
	})
})

type blockingChecker struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (c *blockingChecker) RunAllChecks(ctx context.Context, now time.Time) (user.SweepResult, error) {
	c.calls.Add(1)
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-c.release
	return user.SweepResult{}, nil
}

var _ = Describe("Sweeper", func() {
	It("skips a run while the previous one is still going", func() {
		checker := &blockingChecker{release: make(chan struct{}), started: make(chan struct{}, 1)}
		sweeper := user.NewSweeper(checker, time.Hour, quietLogger())

		done := make(chan bool)
		go func() { done <- sweeper.RunOnce(context.Background()) }()
		Eventually(checker.started).Should(Receive())

		Expect(sweeper.RunOnce(context.Background())).To(BeFalse())

		close(checker.release)
		Eventually(done).Should(Receive(BeTrue()))
		Expect(checker.calls.Load()).To(Equal(int32(1)))
	})

	It("stops when its context is cancelled", func() {
		checker := &blockingChecker{release: make(chan struct{}), started: make(chan struct{}, 1)}
		close(checker.release)
		sweeper := user.NewSweeper(checker, 10*time.Millisecond, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			sweeper.Run(ctx)
			close(stopped)
		}()

		Eventually(func() int32 { return checker.calls.Load() }).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(stopped).Should(BeClosed())
	})
})
