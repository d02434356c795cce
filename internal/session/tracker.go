package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/core/events"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

type Config struct {
	// Timeout is the inactivity window.
	Timeout       time.Duration
	MaxLifetime   time.Duration
	CheckInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 12 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
}

type Tracker struct {
	store   Store
	cfg     Config
	metrics *metrics.Registry
	logger  *slog.Logger
	now     func() time.Time
}

func NewTracker(store Store, cfg Config, m *metrics.Registry, logger *slog.Logger) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) Timeout() time.Duration {
	return t.cfg.Timeout
}

// Start opens a session for userID. The session id doubles as the token id.
func (t *Tracker) Start(ctx context.Context, userID int64, meta internal.RequestMeta) (*Session, error) {
	now := t.now().UTC()
	s := &Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		CreatedAt:      now,
		AbsoluteExpiry: now.Add(t.cfg.MaxLifetime),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
	s.extend(now, t.cfg.Timeout)

	if err := t.store.Save(ctx, s, s.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}
	t.logger.Debug("session started", "user_id", userID, "session_id", s.ID)
	return s, nil
}

// Validate returns the session when it exists and has not expired. An expired
// session is removed on the way out.
func (t *Tracker) Validate(ctx context.Context, id string) (*Session, error) {
	s, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Expired(t.now()) {
		if err := t.store.Delete(ctx, id); err != nil {
			t.logger.Warn("failed to remove expired session", "session_id", id, "error", err)
		}
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Touch validates the session and records activity, sliding the inactivity
// deadline forward. A session ended after the read stays ended.
func (t *Tracker) Touch(ctx context.Context, id string) (*Session, error) {
	s, err := t.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()
	s.extend(now, t.cfg.Timeout)
	if err := t.store.Extend(ctx, s, s.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *Tracker) End(ctx context.Context, id string) error {
	if err := t.store.Delete(ctx, id); err != nil {
		return err
	}
	t.logger.Debug("session ended", "session_id", id)
	return nil
}

// EndAllForUser ends every session of userID, e.g. after a block.
func (t *Tracker) EndAllForUser(ctx context.Context, userID int64) (int, error) {
	n, err := t.store.DeleteByUser(ctx, userID)
	if err != nil {
		return n, err
	}
	if n > 0 {
		t.logger.Info("ended user sessions", "user_id", userID, "count", n)
	}
	return n, nil
}

func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	n, err := t.store.DeleteExpired(ctx, t.now())
	if err != nil {
		return 0, err
	}
	if count, err := t.store.Count(ctx); err == nil {
		t.metrics.SessionsActive(count)
	}
	if n > 0 {
		t.logger.Info("expired sessions removed", "count", n)
	}
	return n, nil
}

// Run sweeps expired sessions every CheckInterval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Sweep(ctx); err != nil {
				t.logger.Error("session sweep failed", "error", err)
			}
		}
	}
}

// Subscribe ends a user's sessions when the user leaves the active state or
// is deleted.
func (t *Tracker) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeUserStatusChanged, func(ctx context.Context, event events.Event) error {
		changed, ok := event.(*events.UserStatusChangedEvent)
		if !ok {
			return errors.New("unexpected payload for " + event.EventType())
		}
		if changed.ToStatus == "active" {
			return nil
		}
		_, err := t.EndAllForUser(ctx, changed.UserID)
		return err
	})
	bus.Subscribe(events.EventTypeUserDeleted, func(ctx context.Context, event events.Event) error {
		deleted, ok := event.(*events.UserDeletedEvent)
		if !ok {
			return errors.New("unexpected payload for " + event.EventType())
		}
		_, err := t.EndAllForUser(ctx, deleted.UserID)
		return err
	})
}
