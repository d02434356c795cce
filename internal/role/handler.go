package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/transport"
)

type ServiceAPI interface {
	Assign(ctx context.Context, userID, roleID int64, grantedBy *int64) (*Assignment, error)
	Revoke(ctx context.Context, userID, roleID int64, actor *int64) (*Assignment, error)
	UserRoles(ctx context.Context, userID int64) ([]*Assignment, error)
	AssignmentHistory(ctx context.Context, userID int64) ([]*Assignment, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	GetRole(ctx context.Context, id int64) (*Role, error)
	CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error)
	UpdateRole(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]*Permission, error)
	CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) GetRoles(w http.ResponseWriter, r *http.Request) {
	id, ok, err := transport.QueryInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if ok {
		role, err := h.Service.GetRole(r.Context(), id)
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusOK, role)
		return
	}

	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, roles)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	role, err := h.Service.CreateRole(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := transport.RequiredQueryInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	var dto UpdateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	role, err := h.Service.UpdateRole(r.Context(), id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := transport.RequiredQueryInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.DeleteRole(r.Context(), id); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.Service.ListPermissions(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, permissions)
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	permission, err := h.Service.CreatePermission(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, permission)
}

// GetUserRoles answers active assignments, or the full history with history=true.
func (h *Handler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := transport.RequiredQueryInt64(r, "user_id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	var assignments []*Assignment
	if transport.QueryBool(r, "history") {
		assignments, err = h.Service.AssignmentHistory(r.Context(), userID)
	} else {
		assignments, err = h.Service.UserRoles(r.Context(), userID)
	}
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, assignments)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var dto AssignRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	assignment, err := h.Service.Assign(r.Context(), dto.UserID, dto.RoleID, actorFrom(r.Context()))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, assignment)
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := transport.RequiredQueryInt64(r, "user_id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	roleID, err := transport.RequiredQueryInt64(r, "role_id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	assignment, err := h.Service.Revoke(r.Context(), userID, roleID, actorFrom(r.Context()))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"revoked":    assignment != nil,
		"assignment": assignment,
	})
}

func actorFrom(ctx context.Context) *int64 {
	if id, ok := internal.UserIDFromContext(ctx); ok {
		return &id
	}
	return nil
}
