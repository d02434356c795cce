package access

import (
	"context"
	"time"

	"github.com/frahmantamala/employee-management/internal/core/common/dates"
)

// PermissionAdminAll grants every action.
const PermissionAdminAll = "admin:all"

// Grant is one role assignment as seen by the evaluator.
type Grant struct {
	AssignmentID int64      `json:"assignmentId"`
	RoleID       int64      `json:"roleId"`
	RoleName     string     `json:"roleName"`
	ValidFrom    time.Time  `json:"validFrom"`
	ValidTo      *time.Time `json:"validTo,omitempty"`
}

// ActiveAt reports whether the grant is in force on the calendar day of at.
// A grant closed today (valid_to = today) is no longer in force; a future
// valid_to keeps it in force until that day.
func (g Grant) ActiveAt(at time.Time) bool {
	if dates.Day(g.ValidFrom).After(dates.Day(at)) {
		return false
	}
	if g.ValidTo == nil {
		return true
	}
	return dates.Day(*g.ValidTo).After(dates.Day(at))
}

// Principal is the authenticated user context used for permission checks.
type Principal struct {
	UserID       int64    `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	DepartmentID *int64   `json:"departmentId,omitempty"`
	SessionID    string   `json:"-"`
	Roles        []Grant  `json:"roles"`
	Permissions  []string `json:"permissions"`
}

func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID > 0
}

// RoleNames lists the granted role names in grant order.
func (p *Principal) RoleNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Roles))
	for _, g := range p.Roles {
		names = append(names, g.RoleName)
	}
	return names
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// ActorID returns the id of the principal bound to ctx, if any.
func ActorID(ctx context.Context) *int64 {
	p, ok := PrincipalFromContext(ctx)
	if !ok || !p.Authenticated() {
		return nil
	}
	id := p.UserID
	return &id
}
