package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/session"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

const statusActive = "active"

// Failure reasons stored on login events.
const (
	reasonInvalidEmail    = "Invalid email"
	reasonInvalidPassword = "Invalid password"
)

type RepositoryAPI interface {
	// FindCredentialByEmail returns nil, nil when no user has that email.
	FindCredentialByEmail(ctx context.Context, email string) (*Credential, error)
}

type SessionTracker interface {
	Start(ctx context.Context, userID int64, meta internal.RequestMeta) (*session.Session, error)
	Touch(ctx context.Context, id string) (*session.Session, error)
	End(ctx context.Context, id string) error
	Timeout() time.Duration
}

type PrincipalLoader interface {
	Load(ctx context.Context, userID int64, at time.Time) (*access.Principal, error)
}

type Recorder interface {
	RecordAudit(ctx context.Context, in audit.Input) (*audit.Entry, error)
	RecordLoginEvent(ctx context.Context, in audit.LoginInput) (*audit.LoginEvent, error)
}

type Service struct {
	repo       RepositoryAPI
	tokens     TokenGenerator
	sessions   SessionTracker
	principals PrincipalLoader
	recorder   Recorder
	metrics    *metrics.Registry
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo RepositoryAPI, tokens TokenGenerator, sessions SessionTracker, principals PrincipalLoader, recorder Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		tokens:     tokens,
		sessions:   sessions,
		principals: principals,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithMetrics(m *metrics.Registry) *Service {
	s.metrics = m
	return s
}

// Login checks the credentials, records the attempt whatever its outcome and
// opens a server-side session for an active account.
func (s *Service) Login(ctx context.Context, dto LoginDTO, meta internal.RequestMeta) (*LoginResult, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	ctx = internal.ContextWithRequestMeta(ctx, meta)

	cred, err := s.repo.FindCredentialByEmail(ctx, dto.Email)
	if err != nil {
		return nil, s.fail(err, "failed to look up credentials")
	}
	if cred == nil {
		s.recordFailure(ctx, nil, reasonInvalidEmail, "invalid_email")
		return nil, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(dto.Password)); err != nil {
		s.recordFailure(ctx, &cred.UserID, reasonInvalidPassword, "invalid_password")
		return nil, internal.ErrInvalidCredentials
	}

	if cred.Status != statusActive {
		s.recordFailure(ctx, &cred.UserID, "Account status: "+cred.Status, "inactive")
		return nil, internal.NewAccountInactiveError(cred.Status)
	}

	principal, err := s.principals.Load(ctx, cred.UserID, s.now())
	if err != nil {
		return nil, s.fail(err, "failed to load principal", "user_id", cred.UserID)
	}

	if _, err := s.recorder.RecordLoginEvent(ctx, audit.LoginInput{UserID: &cred.UserID, Success: true}); err != nil {
		s.logger.Warn("login event not recorded", "user_id", cred.UserID, "error", err)
	}

	sess, err := s.sessions.Start(ctx, cred.UserID, meta)
	if err != nil {
		return nil, s.fail(err, "failed to start session", "user_id", cred.UserID)
	}

	token, err := s.tokens.Generate(cred.UserID, cred.Email, sess.ID, sess.CreatedAt, sess.AbsoluteExpiry)
	if err != nil {
		if endErr := s.sessions.End(ctx, sess.ID); endErr != nil {
			s.logger.Warn("failed to end orphan session", "session_id", sess.ID, "error", endErr)
		}
		return nil, s.fail(err, "failed to issue token", "user_id", cred.UserID)
	}

	principal.SessionID = sess.ID
	s.metrics.LoginAttempt("success")
	s.logger.Info("user logged in", "user_id", cred.UserID, "ip", meta.IPAddress)

	return &LoginResult{
		Message:          "Authentication successful",
		Token:            token,
		User:             principal,
		ExpiresAt:        sess.AbsoluteExpiry,
		SessionExpiresAt: sess.ExpiresAt,
	}, nil
}

// Authenticate resolves a bearer token into a fresh principal. Each call counts
// as activity and slides the session deadline.
func (s *Service) Authenticate(ctx context.Context, token string) (*access.Principal, *session.Session, error) {
	if token == "" {
		return nil, nil, internal.ErrAuthRequired
	}

	now := s.now()
	claims, err := s.tokens.Validate(token, now)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, nil, internal.ErrSessionExpired
		}
		return nil, nil, internal.ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, internal.ErrInvalidToken
	}

	sess, err := s.sessions.Touch(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) || errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil, internal.ErrSessionExpired
		}
		return nil, nil, s.fail(err, "failed to read session", "session_id", claims.ID)
	}
	if sess.UserID != userID {
		s.logger.Warn("token subject does not match session", "session_id", sess.ID, "subject", userID)
		return nil, nil, internal.ErrInvalidToken
	}

	principal, err := s.principals.Load(ctx, userID, now)
	if err != nil {
		if errors.Is(err, access.ErrPrincipalNotFound) {
			s.endQuietly(ctx, sess.ID)
			return nil, nil, internal.ErrSessionExpired
		}
		return nil, nil, s.fail(err, "failed to load principal", "user_id", userID)
	}
	if principal.Status != statusActive {
		s.endQuietly(ctx, sess.ID)
		return nil, nil, internal.NewAccountInactiveError(principal.Status)
	}

	principal.SessionID = sess.ID
	return principal, sess, nil
}

// Logout ends the principal's session and leaves a logout entry in the audit log.
func (s *Service) Logout(ctx context.Context, principal *access.Principal) error {
	if !principal.Authenticated() {
		return internal.ErrAuthRequired
	}
	if err := s.sessions.End(ctx, principal.SessionID); err != nil {
		return s.fail(err, "failed to end session", "session_id", principal.SessionID)
	}

	id := principal.UserID
	_, err := s.recorder.RecordAudit(ctx, audit.Input{
		ActorID:      &id,
		Action:       audit.ActionLogout,
		TargetUserID: &id,
		TargetTable:  "users",
		TargetID:     &id,
		Details:      "User logged out: " + principal.Name,
	})
	if err != nil {
		s.logger.Warn("logout not audited", "user_id", id, "error", err)
	}
	return nil
}

// Describe reports the state of an authenticated session.
func (s *Service) Describe(principal *access.Principal, sess *session.Session) *SessionInfo {
	return &SessionInfo{
		User:           principal,
		LastActivity:   sess.LastActivity,
		ExpiresAt:      sess.ExpiresAt,
		AbsoluteExpiry: sess.AbsoluteExpiry,
		TimeoutSeconds: int64(s.sessions.Timeout() / time.Second),
	}
}

func (s *Service) recordFailure(ctx context.Context, userID *int64, reason, outcome string) {
	s.metrics.LoginAttempt(outcome)
	_, err := s.recorder.RecordLoginEvent(ctx, audit.LoginInput{
		UserID:        userID,
		Success:       false,
		FailureReason: reason,
	})
	if err != nil {
		s.logger.Warn("failed login not recorded", "reason", reason, "error", err)
	}
}

func (s *Service) endQuietly(ctx context.Context, id string) {
	if err := s.sessions.End(ctx, id); err != nil {
		s.logger.Warn("failed to end session", "session_id", id, "error", err)
	}
}

func (s *Service) fail(err error, msg string, kv ...any) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	s.logger.Error(msg, append(kv, "error", err)...)
	return internal.NewInternalError(msg, err)
}
