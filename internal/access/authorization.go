package access

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/transport"
)

// Authorization enforces permissions at the HTTP boundary.
type Authorization struct {
	*transport.BaseHandler
	evaluator Evaluator
	logger    *slog.Logger
}

func NewAuthorization(evaluator Evaluator, logger *slog.Logger) *Authorization {
	return &Authorization{
		BaseHandler: transport.NewBaseHandler(logger),
		evaluator:   evaluator,
		logger:      logger,
	}
}

// Allow returns nil when the principal in ctx holds permission.
func (a *Authorization) Allow(ctx context.Context, permission string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || !principal.Authenticated() {
		return internal.ErrAuthRequired
	}
	if !a.evaluator.HasPermission(principal, permission) {
		a.logger.WarnContext(ctx, "access denied: insufficient permissions",
			"user_id", principal.UserID,
			"required_permission", permission,
			"user_permissions", principal.Permissions)
		return internal.ErrAccessDenied
	}
	return nil
}

func (a *Authorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Allow(r.Context(), permission); err != nil {
			a.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// Require is Check in chi middleware form.
func (a *Authorization) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.Check(next.ServeHTTP, permission)
	}
}
