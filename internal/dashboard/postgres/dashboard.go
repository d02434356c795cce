package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/employee-management/internal/dashboard"
)

const (
	queryUsersByStatus = `SELECT status, COUNT(*) AS count FROM users GROUP BY status`
	queryDepartments   = `SELECT COUNT(*) FROM departments`
	queryRoles         = `SELECT COUNT(*) FROM roles`
	queryLogins        = `SELECT COUNT(*) FROM login_events WHERE success = $1 AND occurred_at >= $2`
	queryByDepartment  = `SELECT d.id AS department_id, d.name, d.code, COUNT(u.id) AS user_count
		FROM departments d
		LEFT JOIN users u ON u.department_id = d.id
		GROUP BY d.id, d.name, d.code
		ORDER BY d.name`
)

// StatsRepository reads aggregate counts with plain SQL.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) CountUsersByStatus(ctx context.Context) ([]dashboard.StatusCount, error) {
	var counts []dashboard.StatusCount
	if err := r.db.SelectContext(ctx, &counts, queryUsersByStatus); err != nil {
		return nil, fmt.Errorf("count users by status: %w", err)
	}
	return counts, nil
}

func (r *StatsRepository) CountDepartments(ctx context.Context) (int64, error) {
	return r.count(ctx, "departments", queryDepartments)
}

func (r *StatsRepository) CountRoles(ctx context.Context) (int64, error) {
	return r.count(ctx, "roles", queryRoles)
}

func (r *StatsRepository) CountLogins(ctx context.Context, success bool, since time.Time) (int64, error) {
	return r.count(ctx, "login events", queryLogins, success, since)
}

func (r *StatsRepository) UsersByDepartment(ctx context.Context) ([]dashboard.DepartmentCount, error) {
	var rows []dashboard.DepartmentCount
	if err := r.db.SelectContext(ctx, &rows, queryByDepartment); err != nil {
		return nil, fmt.Errorf("users by department: %w", err)
	}
	return rows, nil
}

func (r *StatsRepository) count(ctx context.Context, what, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", what, err)
	}
	return n, nil
}
