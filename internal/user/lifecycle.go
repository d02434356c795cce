package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/core/events"
)

func checkTransition(from, to Status, reason string) error {
	if !CanTransition(from, to) {
		message := fmt.Sprintf("Cannot change status from %s to %s", from, to)
		return internal.NewValidationError(message, internal.ErrCodeInvalidTransition)
	}
	if to == StatusBlocked && strings.TrimSpace(reason) == "" {
		return internal.ErrBlockReasonRequired
	}
	return nil
}

// describeTransition picks the audit action and details for a status change.
func describeTransition(u *User, from, to Status, reason string) (string, string) {
	switch {
	case to == StatusBlocked:
		return audit.ActionUserBlocked, "User blocked: " + u.Name + " - Reason: " + strings.TrimSpace(reason)
	case to == StatusInactive:
		return audit.ActionUserDeactivated, "User deactivated: " + u.Name + " (" + u.Email + ")"
	case from == StatusBlocked && to == StatusActive:
		return audit.ActionUserUnblocked, "User unblocked: " + u.Name
	case from == StatusInactive && to == StatusActive:
		return audit.ActionUserReactivated, "User reactivated: " + u.Name
	case from == StatusPending && to == StatusActive:
		return audit.ActionUserActivated, "User activated: " + u.Name
	}
	return audit.ActionUserUpdated, "User updated: " + u.Name
}

// Block moves an active user to blocked. The reason is mandatory and ends up in
// the audit details.
func (s *Service) Block(ctx context.Context, id int64, reason string, actor *int64) (*User, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, internal.ErrBlockReasonRequired
	}
	return s.changeStatus(ctx, id, "", StatusBlocked, reason, actor)
}

func (s *Service) Unblock(ctx context.Context, id int64, actor *int64) (*User, error) {
	return s.changeStatus(ctx, id, StatusBlocked, StatusActive, "", actor)
}

// Deactivate is the soft delete: the row stays, the status becomes inactive.
func (s *Service) Deactivate(ctx context.Context, id int64, actor *int64) (*User, error) {
	return s.changeStatus(ctx, id, "", StatusInactive, "", actor)
}

func (s *Service) Reactivate(ctx context.Context, id int64, actor *int64) (*User, error) {
	return s.changeStatus(ctx, id, StatusInactive, StatusActive, "", actor)
}

// changeStatus runs one transition. An empty expect accepts any state the
// lifecycle table allows.
func (s *Service) changeStatus(ctx context.Context, id int64, expect, to Status, reason string, actor *int64) (*User, error) {
	var (
		updated *User
		from    Status
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		from = before.Status

		if expect != "" && from != expect {
			message := fmt.Sprintf("Cannot change status from %s to %s", from, to)
			return internal.NewValidationError(message, internal.ErrCodeInvalidTransition)
		}
		if err := checkTransition(from, to, reason); err != nil {
			return err
		}
		moved, err := s.repo.UpdateStatus(ctx, id, string(from), string(to))
		if err != nil {
			return err
		}
		if !moved {
			return internal.ErrStatusChanged
		}

		after := *before
		after.Status = to
		updated = &after

		action, details := describeTransition(updated, from, to, reason)
		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:      actor,
			Action:       action,
			TargetUserID: &id,
			TargetTable:  "users",
			TargetID:     &id,
			Before:       before.snapshot(),
			After:        updated.snapshot(),
			Details:      details,
		})
		if err != nil {
			return err
		}

		s.publishAfterCommit(ctx, events.NewUserStatusChangedEvent(id, string(from), string(to)))
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "failed to change user status", "user_id", id, "to_status", to)
	}

	s.logger.Info("user status changed", "user_id", id, "from_status", from, "to_status", to)
	return updated, nil
}

// PermanentDelete removes the user and everything that hangs off it. The audit
// entry carrying the final snapshot is written before the user row goes, in the
// same transaction.
func (s *Service) PermanentDelete(ctx context.Context, id int64, actor *int64) error {
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		grants, err := s.repo.DeleteRoleAssignments(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.repo.DeleteEmployment(ctx, id); err != nil {
			return err
		}

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:      actor,
			Action:       audit.ActionUserPermanentlyDeleted,
			TargetUserID: &id,
			TargetTable:  "users",
			TargetID:     &id,
			Before:       before.snapshot(),
			Details:      fmt.Sprintf("User permanently deleted: %s (%s), %d role assignments removed", before.Name, before.Email, grants),
		})
		if err != nil {
			return err
		}

		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.publishAfterCommit(ctx, events.NewUserDeletedEvent(id))
		return nil
	})
	if err != nil {
		return s.fail(err, "failed to delete user", "user_id", id)
	}

	s.logger.Info("user permanently deleted", "user_id", id)
	return nil
}
