package user

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, filter Filter) ([]*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, dto CreateUserDTO, actor *int64) (*User, error)
	Update(ctx context.Context, id int64, dto UpdateUserDTO, actor *int64) (*User, error)
	Deactivate(ctx context.Context, id int64, actor *int64) (*User, error)
	PermanentDelete(ctx context.Context, id int64, actor *int64) error
	ActivatePendingUsers(ctx context.Context, now time.Time) (int, error)
	DeactivateExpiredContracts(ctx context.Context, now time.Time) (int, error)
	RunAllChecks(ctx context.Context, now time.Time) (SweepResult, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Now     func() time.Time
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Now:         time.Now,
	}
}

func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	id, ok, err := transport.QueryInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if ok {
		u, err := h.Service.Get(r.Context(), id)
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusOK, u)
		return
	}

	filter := Filter{
		Status: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Search: r.URL.Query().Get("search"),
	}
	departmentID, ok, err := transport.QueryInt64(r, "department_id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if ok {
		filter.DepartmentID = &departmentID
	}

	users, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	u, err := h.Service.Create(r.Context(), dto, actorFrom(r.Context()))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

// UpdateUser handles profile edits and status changes; blocking needs a reason
// in the same body.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := transport.RequiredQueryInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	var dto UpdateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	u, err := h.Service.Update(r.Context(), id, dto, actorFrom(r.Context()))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// DeleteUser deactivates by default; permanent=true removes the user for good.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := transport.RequiredQueryInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if transport.QueryBool(r, "permanent") {
		if err := h.Service.PermanentDelete(r.Context(), id, actorFrom(r.Context())); err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "permanent": true})
		return
	}

	u, err := h.Service.Deactivate(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "permanent": false, "user": u})
}

type ContractActionDTO struct {
	Action string `json:"action"`
}

const (
	ContractActionCheckExpired    = "check_expired_contracts"
	ContractActionActivatePending = "activate_pending_users"
	ContractActionRunAll          = "run_all_checks"
)

// RunContractAction triggers one of the lifecycle sweeps on demand.
func (h *Handler) RunContractAction(w http.ResponseWriter, r *http.Request) {
	var dto ContractActionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	now := h.Now()
	var result SweepResult
	var err error
	switch strings.TrimSpace(dto.Action) {
	case ContractActionCheckExpired:
		result.Deactivated, err = h.Service.DeactivateExpiredContracts(r.Context(), now)
	case ContractActionActivatePending:
		result.Activated, err = h.Service.ActivatePendingUsers(r.Context(), now)
	case ContractActionRunAll:
		result, err = h.Service.RunAllChecks(r.Context(), now)
	default:
		err = internal.NewValidationFieldError("action",
			"action must be one of: check_expired_contracts, activate_pending_users, run_all_checks",
			internal.ErrCodeInvalidFormat)
	}
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "action": dto.Action, "result": result})
}

func actorFrom(ctx context.Context) *int64 {
	if id, ok := internal.UserIDFromContext(ctx); ok {
		return &id
	}
	return nil
}
