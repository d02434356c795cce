package user

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	"github.com/frahmantamala/employee-management/internal/core/events"
)

type SweepResult struct {
	Activated   int `json:"activated"`
	Deactivated int `json:"deactivated"`
}

// ActivatePendingUsers activates every pending user whose employment started on
// or before the day of now. Each user is handled in its own transaction so one
// failure does not hold back the rest.
func (s *Service) ActivatePendingUsers(ctx context.Context, now time.Time) (int, error) {
	ctx = internal.SystemContext(ctx)
	day := dates.Day(now)

	ids, err := s.repo.PendingStartedBy(ctx, day)
	if err != nil {
		return 0, s.fail(err, "failed to find pending users")
	}

	activated := 0
	for _, id := range ids {
		changed, err := s.sweepOne(ctx, id, func(u *User) (Status, string, string, bool) {
			if u.Status != StatusPending || u.Employment == nil {
				return "", "", "", false
			}
			start, err := dates.Parse(u.Employment.StartDate)
			if err != nil || !dates.OnOrBefore(start, day) {
				return "", "", "", false
			}
			return StatusActive, audit.ActionUserActivated, "User activated: start date reached", true
		})
		if err != nil {
			s.logger.Error("failed to activate pending user", "user_id", id, "error", err)
			continue
		}
		if changed {
			activated++
		}
	}

	s.metrics.SweepChanges("activate_pending", activated)
	if activated > 0 {
		s.logger.Info("activated pending users", "count", activated)
	}
	return activated, nil
}

// DeactivateExpiredContracts moves users whose employment end date has passed
// to inactive.
func (s *Service) DeactivateExpiredContracts(ctx context.Context, now time.Time) (int, error) {
	ctx = internal.SystemContext(ctx)
	day := dates.Day(now)

	ids, err := s.repo.ContractsEndedBefore(ctx, day)
	if err != nil {
		return 0, s.fail(err, "failed to find expired contracts")
	}

	deactivated := 0
	for _, id := range ids {
		changed, err := s.sweepOne(ctx, id, func(u *User) (Status, string, string, bool) {
			if u.Status == StatusInactive || u.Employment == nil || u.Employment.EndDate == nil {
				return "", "", "", false
			}
			end, err := dates.Parse(*u.Employment.EndDate)
			if err != nil || !dates.Before(end, day) {
				return "", "", "", false
			}
			details := fmt.Sprintf("User deactivated: contract ended on %s", *u.Employment.EndDate)
			return StatusInactive, audit.ActionUserContractExpired, details, true
		})
		if err != nil {
			s.logger.Error("failed to deactivate expired contract", "user_id", id, "error", err)
			continue
		}
		if changed {
			deactivated++
		}
	}

	s.metrics.SweepChanges("expire_contracts", deactivated)
	if deactivated > 0 {
		s.logger.Info("deactivated users with expired contracts", "count", deactivated)
	}
	return deactivated, nil
}

// RunAllChecks expires contracts first so a user whose contract already ended
// is never activated on the same pass.
func (s *Service) RunAllChecks(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	var err error
	if result.Deactivated, err = s.DeactivateExpiredContracts(ctx, now); err != nil {
		return result, err
	}
	if result.Activated, err = s.ActivatePendingUsers(ctx, now); err != nil {
		return result, err
	}
	return result, nil
}

type sweepDecision func(u *User) (to Status, action, details string, ok bool)

// sweepOne re-reads the user inside its transaction and applies decide to the
// fresh state. The status update is conditional on the status that was read,
// so when another sweep or an admin edit moves the user first this one writes
// nothing and records no audit entry.
func (s *Service) sweepOne(ctx context.Context, id int64, decide sweepDecision) (bool, error) {
	changed := false
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		to, action, details, ok := decide(before)
		if !ok {
			return nil
		}
		moved, err := s.repo.UpdateStatus(ctx, id, string(before.Status), string(to))
		if err != nil || !moved {
			return err
		}

		after := *before
		after.Status = to
		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:       action,
			TargetUserID: &id,
			TargetTable:  "users",
			TargetID:     &id,
			Before:       before.snapshot(),
			After:        after.snapshot(),
			Details:      details,
		})
		if err != nil {
			return err
		}

		s.publishAfterCommit(ctx, events.NewUserStatusChangedEvent(id, string(before.Status), string(to)))
		changed = true
		return nil
	})
	return changed, err
}

// Checker is the part of Service the sweeper drives.
type Checker interface {
	RunAllChecks(ctx context.Context, now time.Time) (SweepResult, error)
}

// Sweeper runs the lifecycle checks on a fixed interval. A tick that arrives
// while the previous run is still going is skipped.
type Sweeper struct {
	checker  Checker
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	running  atomic.Bool
}

func NewSweeper(checker Checker, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		checker:  checker,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) {
	sw.logger.Info("lifecycle sweeper started", "interval", sw.interval)
	sw.RunOnce(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce reports false when another run was already in progress.
func (sw *Sweeper) RunOnce(ctx context.Context) bool {
	if !sw.running.CompareAndSwap(false, true) {
		sw.logger.Debug("lifecycle sweep already running, skipping")
		return false
	}
	defer sw.running.Store(false)

	result, err := sw.checker.RunAllChecks(ctx, sw.now())
	if err != nil {
		sw.logger.Error("lifecycle sweep failed", "error", err)
		return true
	}
	sw.logger.Debug("lifecycle sweep finished", "activated", result.Activated, "deactivated", result.Deactivated)
	return true
}
