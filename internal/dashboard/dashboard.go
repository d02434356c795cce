package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/user"
)

// loginWindow is how far back the login counters look.
const loginWindow = 30 * 24 * time.Hour

type Stats struct {
	TotalUsers        int64             `json:"totalUsers"`
	TotalDepartments  int64             `json:"totalDepartments"`
	ActiveUsers       int64             `json:"activeUsers"`
	PendingUsers      int64             `json:"pendingUsers"`
	BlockedUsers      int64             `json:"blockedUsers"`
	InactiveUsers     int64             `json:"inactiveUsers"`
	TotalRoles        int64             `json:"totalRoles"`
	RecentLogins      int64             `json:"recentLogins"`
	FailedLogins      int64             `json:"failedLogins"`
	UsersByDepartment []DepartmentCount `json:"usersByDepartment"`
}

type DepartmentCount struct {
	DepartmentID int64  `db:"department_id" json:"departmentId"`
	Name         string `db:"name" json:"name"`
	Code         string `db:"code" json:"code"`
	UserCount    int64  `db:"user_count" json:"userCount"`
}

type StatusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

type RepositoryAPI interface {
	CountUsersByStatus(ctx context.Context) ([]StatusCount, error)
	CountDepartments(ctx context.Context) (int64, error)
	CountRoles(ctx context.Context) (int64, error)
	CountLogins(ctx context.Context, success bool, since time.Time) (int64, error)
	UsersByDepartment(ctx context.Context) ([]DepartmentCount, error)
}

// LifecycleChecker runs the pending/expired sweeps before the numbers are read.
type LifecycleChecker interface {
	RunAllChecks(ctx context.Context, now time.Time) (user.SweepResult, error)
}

type Service struct {
	repo    RepositoryAPI
	checker LifecycleChecker
	logger  *slog.Logger
}

// NewService takes a nil checker when on-read sweeps are disabled.
func NewService(repo RepositoryAPI, checker LifecycleChecker, logger *slog.Logger) *Service {
	return &Service{repo: repo, checker: checker, logger: logger}
}

func (s *Service) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	if s.checker != nil {
		if _, err := s.checker.RunAllChecks(ctx, now); err != nil {
			s.logger.Warn("lifecycle checks before stats failed", "error", err)
		}
	}

	stats := &Stats{UsersByDepartment: []DepartmentCount{}}

	byStatus, err := s.repo.CountUsersByStatus(ctx)
	if err != nil {
		return nil, s.fail(err, "failed to count users")
	}
	for _, c := range byStatus {
		stats.TotalUsers += c.Count
		switch user.Status(c.Status) {
		case user.StatusActive:
			stats.ActiveUsers = c.Count
		case user.StatusPending:
			stats.PendingUsers = c.Count
		case user.StatusBlocked:
			stats.BlockedUsers = c.Count
		case user.StatusInactive:
			stats.InactiveUsers = c.Count
		}
	}

	if stats.TotalDepartments, err = s.repo.CountDepartments(ctx); err != nil {
		return nil, s.fail(err, "failed to count departments")
	}
	if stats.TotalRoles, err = s.repo.CountRoles(ctx); err != nil {
		return nil, s.fail(err, "failed to count roles")
	}

	since := now.Add(-loginWindow)
	if stats.RecentLogins, err = s.repo.CountLogins(ctx, true, since); err != nil {
		return nil, s.fail(err, "failed to count logins")
	}
	if stats.FailedLogins, err = s.repo.CountLogins(ctx, false, since); err != nil {
		return nil, s.fail(err, "failed to count failed logins")
	}

	departments, err := s.repo.UsersByDepartment(ctx)
	if err != nil {
		return nil, s.fail(err, "failed to group users by department")
	}
	if departments != nil {
		stats.UsersByDepartment = departments
	}
	return stats, nil
}

func (s *Service) fail(err error, msg string) error {
	s.logger.Error(msg, "error", err)
	return internal.NewInternalError(msg, err)
}
