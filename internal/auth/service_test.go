package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/session"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

// Mock credential repository for testing
type mockCredentialRepository struct {
	credentials map[string]*Credential
	shouldFail  bool
}

func newMockCredentialRepository() *mockCredentialRepository {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct_password"), bcrypt.MinCost)
	return &mockCredentialRepository{
		credentials: map[string]*Credential{
			"user@example.com":    {UserID: 1, Email: "user@example.com", PasswordHash: string(hash), Status: "active"},
			"blocked@example.com": {UserID: 2, Email: "blocked@example.com", PasswordHash: string(hash), Status: "blocked"},
			"pending@example.com": {UserID: 3, Email: "pending@example.com", PasswordHash: string(hash), Status: "pending"},
		},
	}
}

func (m *mockCredentialRepository) FindCredentialByEmail(ctx context.Context, email string) (*Credential, error) {
	if m.shouldFail {
		return nil, errors.New("connection reset")
	}
	if cred, ok := m.credentials[email]; ok {
		copied := *cred
		return &copied, nil
	}
	return nil, nil
}

type mockPrincipalLoader struct {
	statuses map[int64]string
}

func (m *mockPrincipalLoader) Load(ctx context.Context, userID int64, at time.Time) (*access.Principal, error) {
	status, ok := m.statuses[userID]
	if !ok {
		return nil, access.ErrPrincipalNotFound
	}
	return &access.Principal{
		UserID:      userID,
		Email:       "user@example.com",
		Name:        "Test User",
		Status:      status,
		Permissions: []string{"user:read"},
	}, nil
}

type mockRecorder struct {
	logins []audit.LoginInput
	audits []audit.Input
	metas  []internal.RequestMeta
}

func (m *mockRecorder) RecordLoginEvent(ctx context.Context, in audit.LoginInput) (*audit.LoginEvent, error) {
	m.logins = append(m.logins, in)
	m.metas = append(m.metas, internal.RequestMetaFromContext(ctx))
	return &audit.LoginEvent{Success: in.Success}, nil
}

func (m *mockRecorder) RecordAudit(ctx context.Context, in audit.Input) (*audit.Entry, error) {
	m.audits = append(m.audits, in)
	return &audit.Entry{Action: in.Action}, nil
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		ctx      context.Context
		now      time.Time
		service  *Service
		mockRepo *mockCredentialRepository
		loader   *mockPrincipalLoader
		recorder *mockRecorder
		store    *session.MemoryStore
		tokenGen *JWTTokenGenerator
		meta     internal.RequestMeta
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		mockRepo = newMockCredentialRepository()
		loader = &mockPrincipalLoader{statuses: map[int64]string{1: "active", 2: "blocked", 3: "pending"}}
		recorder = &mockRecorder{}
		store = session.NewMemoryStore()
		tracker := session.NewTracker(store, session.Config{
			Timeout:     30 * time.Minute,
			MaxLifetime: 12 * time.Hour,
		}, nil, logger).WithClock(clock)
		tokenGen = NewJWTTokenGenerator("test-secret")
		service = NewService(mockRepo, tokenGen, tracker, loader, recorder, logger).WithClock(clock)
		meta = internal.RequestMeta{IPAddress: "192.168.1.10", UserAgent: "ginkgo"}
	})

	ginkgo.Describe("Login", func() {
		ginkgo.Context("when credentials are valid", func() {
			ginkgo.It("should issue a token bound to a new session", func() {
				// When
				result, err := service.Login(ctx, LoginDTO{Email: " User@Example.com ", Password: "correct_password"}, meta)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(result.Token).ToNot(gomega.BeEmpty())
				gomega.Expect(result.User.UserID).To(gomega.Equal(int64(1)))
				gomega.Expect(result.SessionExpiresAt).To(gomega.Equal(now.Add(30 * time.Minute)))
				gomega.Expect(result.ExpiresAt).To(gomega.Equal(now.Add(12 * time.Hour)))

				claims, err := tokenGen.Validate(result.Token, now)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(claims.ID).To(gomega.Equal(result.User.SessionID))
				gomega.Expect(claims.Subject).To(gomega.Equal("1"))

				count, _ := store.Count(ctx)
				gomega.Expect(count).To(gomega.Equal(1))
			})

			ginkgo.It("should record one successful login event with the caller's address", func() {
				_, err := service.Login(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"}, meta)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(recorder.logins).To(gomega.HaveLen(1))
				gomega.Expect(recorder.logins[0].Success).To(gomega.BeTrue())
				gomega.Expect(*recorder.logins[0].UserID).To(gomega.Equal(int64(1)))
				gomega.Expect(recorder.metas[0]).To(gomega.Equal(meta))
			})
		})

		ginkgo.Context("when credentials are invalid", func() {
			ginkgo.It("should record an unknown email without a user id", func() {
				result, err := service.Login(ctx, LoginDTO{Email: "nobody@example.com", Password: "any_password"}, meta)

				gomega.Expect(result).To(gomega.BeNil())
				gomega.Expect(err).To(gomega.MatchError(internal.ErrInvalidCredentials))
				gomega.Expect(recorder.logins).To(gomega.HaveLen(1))
				gomega.Expect(recorder.logins[0].UserID).To(gomega.BeNil())
				gomega.Expect(recorder.logins[0].FailureReason).To(gomega.Equal("Invalid email"))
			})

			ginkgo.It("should record a wrong password against the user", func() {
				_, err := service.Login(ctx, LoginDTO{Email: "user@example.com", Password: "wrong_password"}, meta)

				gomega.Expect(err).To(gomega.MatchError(internal.ErrInvalidCredentials))
				gomega.Expect(recorder.logins).To(gomega.HaveLen(1))
				gomega.Expect(*recorder.logins[0].UserID).To(gomega.Equal(int64(1)))
				gomega.Expect(recorder.logins[0].FailureReason).To(gomega.Equal("Invalid password"))

				count, _ := store.Count(ctx)
				gomega.Expect(count).To(gomega.BeZero())
			})
		})

		ginkgo.Context("when the account is not active", func() {
			ginkgo.It("should reject with 403 and the status as failure reason", func() {
				_, err := service.Login(ctx, LoginDTO{Email: "blocked@example.com", Password: "correct_password"}, meta)

				appErr, ok := internal.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.StatusCode).To(gomega.Equal(403))
				gomega.Expect(recorder.logins[0].FailureReason).To(gomega.Equal("Account status: blocked"))
			})

			ginkgo.It("should reject a pending account", func() {
				_, err := service.Login(ctx, LoginDTO{Email: "pending@example.com", Password: "correct_password"}, meta)

				gomega.Expect(err).To(gomega.MatchError(internal.NewAccountInactiveError("pending")))
			})
		})

		ginkgo.Context("when input validation fails", func() {
			ginkgo.It("should return field errors without recording an event", func() {
				_, err := service.Login(ctx, LoginDTO{Email: "", Password: ""}, meta)

				appErr, ok := internal.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.StatusCode).To(gomega.Equal(400))
				gomega.Expect(appErr.FieldErrors()).To(gomega.HaveLen(2))
				gomega.Expect(err.Error()).To(gomega.ContainSubstring("email is required"))
				gomega.Expect(recorder.logins).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when the repository fails", func() {
			ginkgo.It("should return an internal error", func() {
				mockRepo.shouldFail = true

				_, err := service.Login(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"}, meta)

				appErr, ok := internal.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeInternal))
			})
		})
	})

	ginkgo.Describe("Authenticate", func() {
		var token string

		ginkgo.BeforeEach(func() {
			result, err := service.Login(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"}, meta)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			token = result.Token
		})

		ginkgo.It("should load a fresh principal and slide the session", func() {
			now = now.Add(20 * time.Minute)

			principal, sess, err := service.Authenticate(ctx, token)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(principal.UserID).To(gomega.Equal(int64(1)))
			gomega.Expect(principal.SessionID).To(gomega.Equal(sess.ID))
			gomega.Expect(sess.ExpiresAt).To(gomega.Equal(now.Add(30 * time.Minute)))
		})

		ginkgo.It("should expire the session after 30 minutes of inactivity", func() {
			now = now.Add(31 * time.Minute)

			_, _, err := service.Authenticate(ctx, token)

			gomega.Expect(err).To(gomega.MatchError(internal.ErrSessionExpired))
			gomega.Expect(err.Error()).To(gomega.Equal("Your session has expired. Please log in again."))
		})

		ginkgo.It("should end the session once the account is blocked", func() {
			loader.statuses[1] = "blocked"

			_, _, err := service.Authenticate(ctx, token)
			gomega.Expect(err).To(gomega.MatchError(internal.NewAccountInactiveError("blocked")))

			loader.statuses[1] = "active"
			_, _, err = service.Authenticate(ctx, token)
			gomega.Expect(err).To(gomega.MatchError(internal.ErrSessionExpired))
		})

		ginkgo.It("should reject tokens signed with another secret", func() {
			forged, err := NewJWTTokenGenerator("other-secret").Generate(1, "user@example.com", "abc", now, now.Add(time.Hour))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, _, err = service.Authenticate(ctx, forged)

			gomega.Expect(err).To(gomega.MatchError(internal.ErrInvalidToken))
		})

		ginkgo.It("should require a token", func() {
			_, _, err := service.Authenticate(ctx, "")

			gomega.Expect(err).To(gomega.MatchError(internal.ErrAuthRequired))
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("should end the session and audit the logout", func() {
			result, err := service.Login(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"}, meta)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			principal, _, err := service.Authenticate(ctx, result.Token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(service.Logout(ctx, principal)).To(gomega.Succeed())
			gomega.Expect(recorder.audits).To(gomega.HaveLen(1))
			gomega.Expect(recorder.audits[0].Action).To(gomega.Equal(audit.ActionLogout))

			_, _, err = service.Authenticate(ctx, result.Token)
			gomega.Expect(err).To(gomega.MatchError(internal.ErrSessionExpired))
		})
	})
})

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	ginkgo.It("should report expired tokens separately", func() {
		issued := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
		gen := NewJWTTokenGenerator("secret")
		token, err := gen.Generate(5, "a@example.com", "sid", issued, issued.Add(time.Hour))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = gen.Validate(token, issued.Add(2*time.Hour))
		gomega.Expect(err).To(gomega.Equal(ErrTokenExpired))

		claims, err := gen.Validate(token, issued.Add(time.Minute))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		id, err := claims.UserID()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(id).To(gomega.Equal(int64(5)))
	})
})
