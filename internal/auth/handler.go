package auth

import (
	"context"
	"net/http"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/session"
	"github.com/frahmantamala/employee-management/internal/transport"
	"github.com/frahmantamala/employee-management/pkg/logger"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO, meta internal.RequestMeta) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (*access.Principal, *session.Session, error)
	Logout(ctx context.Context, principal *access.Principal) error
	Describe(principal *access.Principal, sess *session.Session) *SessionInfo
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	result, err := h.Service.Login(r.Context(), dto, transport.RequestMeta(r))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// CurrentSession answers GET and the PUT activity ping. The middleware has
// already extended the session by the time either runs.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	principal, sess, ok := fromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrAuthRequired)
		return
	}
	h.WriteJSON(w, http.StatusOK, h.Service.Describe(principal, sess))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, _, ok := fromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrAuthRequired)
		return
	}
	if err := h.Service.Logout(r.Context(), principal); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Middleware authenticates the bearer token and binds the principal, the
// session and the request metadata to the request context.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, sess, err := h.Service.Authenticate(r.Context(), h.ExtractTokenFromHeader(r))
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}

		ctx := access.WithPrincipal(r.Context(), principal)
		ctx = withSession(ctx, sess)
		ctx = internal.ContextWithUserID(ctx, principal.UserID)
		ctx = internal.ContextWithRequestMeta(ctx, transport.RequestMeta(r))
		ctx = logger.With(ctx, "user_id", principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sessionKey struct{}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func fromContext(ctx context.Context) (*access.Principal, *session.Session, bool) {
	principal, ok := access.PrincipalFromContext(ctx)
	if !ok {
		return nil, nil, false
	}
	sess, ok := ctx.Value(sessionKey{}).(*session.Session)
	if !ok || sess == nil {
		return nil, nil, false
	}
	return principal, sess, true
}
