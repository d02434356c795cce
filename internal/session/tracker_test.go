package session_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/core/events"
	"github.com/frahmantamala/employee-management/internal/session"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

// logoutOnRead ends the session right after it is read, the way a logout
// landing in the middle of a request would.
type logoutOnRead struct {
	*session.MemoryStore
}

func (l logoutOnRead) Get(ctx context.Context, id string) (*session.Session, error) {
	s, err := l.MemoryStore.Get(ctx, id)
	if err == nil {
		_ = l.MemoryStore.Delete(ctx, id)
	}
	return s, err
}

var _ = Describe("Tracker", func() {
	var (
		ctx     context.Context
		now     time.Time
		store   *session.MemoryStore
		tracker *session.Tracker
		logger  *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
		store = session.NewMemoryStore()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		tracker = session.NewTracker(store, session.Config{
			Timeout:     30 * time.Minute,
			MaxLifetime: 2 * time.Hour,
		}, nil, logger).WithClock(func() time.Time { return now })
	})

	It("starts a session that expires after the inactivity timeout", func() {
		s, err := tracker.Start(ctx, 1, internal.RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.ID).NotTo(BeEmpty())
		Expect(s.ExpiresAt).To(Equal(now.Add(30 * time.Minute)))

		now = now.Add(29 * time.Minute)
		_, err = tracker.Validate(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(time.Minute)
		_, err = tracker.Validate(ctx, s.ID)
		Expect(err).To(MatchError(session.ErrSessionExpired))

		_, err = tracker.Validate(ctx, s.ID)
		Expect(err).To(MatchError(session.ErrSessionNotFound))
	})

	It("slides the deadline on activity but never past the absolute lifetime", func() {
		s, err := tracker.Start(ctx, 1, internal.RequestMeta{})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			now = now.Add(25 * time.Minute)
			touched, err := tracker.Touch(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(touched.ExpiresAt).To(Equal(now.Add(30 * time.Minute)))
		}

		now = now.Add(25 * time.Minute) // 1h40m after start
		touched, err := tracker.Touch(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(touched.ExpiresAt).To(Equal(s.AbsoluteExpiry))

		now = s.AbsoluteExpiry
		_, err = tracker.Touch(ctx, s.ID)
		Expect(err).To(MatchError(session.ErrSessionExpired))
	})

	It("does not bring back a session ended while it was being touched", func() {
		racing := session.NewTracker(logoutOnRead{store}, session.Config{
			Timeout:     30 * time.Minute,
			MaxLifetime: 2 * time.Hour,
		}, nil, logger).WithClock(func() time.Time { return now })

		s, err := tracker.Start(ctx, 1, internal.RequestMeta{})
		Expect(err).NotTo(HaveOccurred())

		_, err = racing.Touch(ctx, s.ID)
		Expect(err).To(MatchError(session.ErrSessionNotFound))

		_, err = store.Get(ctx, s.ID)
		Expect(err).To(MatchError(session.ErrSessionNotFound))
		count, _ := store.Count(ctx)
		Expect(count).To(BeZero())
	})

	It("extends only sessions that still exist", func() {
		s, err := tracker.Start(ctx, 1, internal.RequestMeta{})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Extend(ctx, s, time.Minute)).To(Succeed())

		Expect(tracker.End(ctx, s.ID)).To(Succeed())
		Expect(store.Extend(ctx, s, time.Minute)).To(MatchError(session.ErrSessionNotFound))
	})

	It("ends one session or all sessions of a user", func() {
		a, _ := tracker.Start(ctx, 1, internal.RequestMeta{})
		b, _ := tracker.Start(ctx, 1, internal.RequestMeta{})
		c, _ := tracker.Start(ctx, 2, internal.RequestMeta{})

		Expect(tracker.End(ctx, a.ID)).To(Succeed())
		_, err := tracker.Validate(ctx, a.ID)
		Expect(err).To(MatchError(session.ErrSessionNotFound))

		n, err := tracker.EndAllForUser(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		_, err = tracker.Validate(ctx, b.ID)
		Expect(err).To(MatchError(session.ErrSessionNotFound))

		_, err = tracker.Validate(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("sweeps expired sessions", func() {
		_, _ = tracker.Start(ctx, 1, internal.RequestMeta{})
		now = now.Add(20 * time.Minute)
		fresh, _ := tracker.Start(ctx, 2, internal.RequestMeta{})

		now = now.Add(15 * time.Minute)
		n, err := tracker.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		count, _ := store.Count(ctx)
		Expect(count).To(Equal(1))
		_, err = tracker.Validate(ctx, fresh.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("ends sessions when a user is blocked or deleted", func() {
		bus := events.NewEventBus(logger)
		tracker.Subscribe(bus)

		blocked, _ := tracker.Start(ctx, 1, internal.RequestMeta{})
		deleted, _ := tracker.Start(ctx, 2, internal.RequestMeta{})
		unblocked, _ := tracker.Start(ctx, 3, internal.RequestMeta{})

		Expect(bus.Publish(ctx, events.NewUserStatusChangedEvent(1, "active", "blocked"))).To(Succeed())
		Expect(bus.Publish(ctx, events.NewUserDeletedEvent(2))).To(Succeed())
		Expect(bus.Publish(ctx, events.NewUserStatusChangedEvent(3, "blocked", "active"))).To(Succeed())

		Eventually(func() error {
			_, err := store.Get(ctx, blocked.ID)
			return err
		}).Should(MatchError(session.ErrSessionNotFound))
		Eventually(func() error {
			_, err := store.Get(ctx, deleted.ID)
			return err
		}).Should(MatchError(session.ErrSessionNotFound))
		Consistently(func() error {
			_, err := store.Get(ctx, unblocked.ID)
			return err
		}, 100*time.Millisecond).Should(Succeed())
	})
})
