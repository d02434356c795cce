package audit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	"github.com/frahmantamala/employee-management/internal/transport"
	"github.com/frahmantamala/employee-management/pkg/export"
)

type ServiceAPI interface {
	ListAuditLogs(ctx context.Context, filter Filter) ([]*Entry, error)
	ListLoginEvents(ctx context.Context, filter LoginFilter) ([]*LoginEvent, error)
	RecentActivity(ctx context.Context, limit int) ([]Activity, error)
	SecurityAlerts(ctx context.Context, now time.Time) ([]Alert, error)
	Export(ctx context.Context, format export.Format, filter Filter, now time.Time) (*ExportFile, error)
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

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	entries, err := h.Service.ListAuditLogs(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) ListLoginEvents(w http.ResponseWriter, r *http.Request) {
	userID, present, err := transport.QueryInt64(r, "user_id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	filter := LoginFilter{
		Limit:  transport.QueryInt(r, "limit", 0),
		Offset: transport.QueryInt(r, "offset", 0),
	}
	if present {
		filter.UserID = &userID
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("success")); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			h.WriteAppError(w, r, internal.NewValidationFieldError("success", "success must be true or false", internal.ErrCodeInvalidFormat))
			return
		}
		filter.Success = &success
	}

	loginEvents, err := h.Service.ListLoginEvents(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, loginEvents)
}

func (h *Handler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	feed, err := h.Service.RecentActivity(r.Context(), transport.QueryInt(r, "limit", defaultActivityLimit))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, feed)
}

func (h *Handler) SecurityAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Service.SecurityAlerts(r.Context(), h.Now())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, alerts)
}

// Export streams the rendered file as an attachment.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.WriteAppError(w, r, internal.NewValidationFieldError("format", "format must be one of: csv, xlsx, pdf", internal.ErrCodeInvalidFormat))
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	file, err := h.Service.Export(r.Context(), format, filter, h.Now())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		h.Logger.Error("failed to write export", "file", file.Name, "error", err)
	}
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		Action: strings.TrimSpace(q.Get("action")),
		Status: strings.TrimSpace(q.Get("status")),
		Limit:  transport.QueryInt(r, "limit", 0),
		Offset: transport.QueryInt(r, "offset", 0),
	}

	actorID, ok, err := transport.QueryInt64(r, "user_id")
	if err != nil {
		return Filter{}, err
	}
	if ok {
		filter.ActorID = &actorID
	}
	targetID, ok, err := transport.QueryInt64(r, "target_user_id")
	if err != nil {
		return Filter{}, err
	}
	if ok {
		filter.TargetUserID = &targetID
	}

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := dates.Parse(raw)
		if err != nil {
			return Filter{}, internal.NewValidationFieldError("from", "from must be a date in YYYY-MM-DD format", internal.ErrCodeInvalidDate)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := dates.Parse(raw)
		if err != nil {
			return Filter{}, internal.NewValidationFieldError("to", "to must be a date in YYYY-MM-DD format", internal.ErrCodeInvalidDate)
		}
		// inclusive day
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}
	return filter, nil
}
