package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	auditDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/core/events"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

// WriterAPI appends rows. Implementations must join the transaction carried by ctx.
type WriterAPI interface {
	CreateEntry(ctx context.Context, entry *auditDatamodel.AuditLog) error
	CreateLoginEvent(ctx context.Context, event *auditDatamodel.LoginEvent) error
}

// Recorder appends audit entries and login events. It never updates or deletes.
type Recorder struct {
	repo    WriterAPI
	bus     events.Publisher
	metrics *metrics.Registry
	logger  *slog.Logger
	now     func() time.Time
}

func NewRecorder(repo WriterAPI, bus events.Publisher, m *metrics.Registry, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:    repo,
		bus:     bus,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests and replays.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// RecordAudit appends one entry. The actor defaults to the user in ctx and the
// address/user agent to the request metadata in ctx. Invalid addresses are stored as null.
func (r *Recorder) RecordAudit(ctx context.Context, in Input) (*Entry, error) {
	if in.Action == "" {
		return nil, fmt.Errorf("audit action is required")
	}

	actorID := in.ActorID
	if actorID == nil {
		if id, ok := internal.UserIDFromContext(ctx); ok {
			actorID = &id
		}
	}

	meta := internal.RequestMetaFromContext(ctx)
	ip := in.IPAddress
	if ip == "" {
		ip = meta.IPAddress
	}
	userAgent := in.UserAgent
	if userAgent == "" {
		userAgent = meta.UserAgent
	}

	status := in.Status
	if status == "" {
		status = StatusSuccess
	}

	before, err := Snapshot(in.Before)
	if err != nil {
		return nil, fmt.Errorf("snapshot old values: %w", err)
	}
	after, err := Snapshot(in.After)
	if err != nil {
		return nil, fmt.Errorf("snapshot new values: %w", err)
	}

	row := &auditDatamodel.AuditLog{
		UserID:       actorID,
		Action:       in.Action,
		TargetUserID: in.TargetUserID,
		TargetTable:  optionalString(in.TargetTable),
		TargetID:     in.TargetID,
		OldValues:    before,
		NewValues:    after,
		Status:       status,
		Details:      optionalString(in.Details),
		IPAddress:    NormalizeIP(ip),
		UserAgent:    optionalString(userAgent),
		CreatedAt:    r.now().UTC(),
	}

	if err := r.repo.CreateEntry(ctx, row); err != nil {
		r.logger.Error("failed to write audit entry", "action", in.Action, "error", err)
		return nil, fmt.Errorf("write audit entry: %w", err)
	}

	entry := EntryFromDataModel(row)
	datastore.AfterCommit(ctx, func() {
		r.metrics.AuditEntry(entry.Action)
		r.publish(ctx, events.NewAuditRecordedEvent(entry.ID, entry.Action, entry.ActorID, entry, entry.CreatedAt))
	})
	return entry, nil
}

// RecordLoginEvent appends one authentication attempt, successful or not.
func (r *Recorder) RecordLoginEvent(ctx context.Context, in LoginInput) (*LoginEvent, error) {
	meta := internal.RequestMetaFromContext(ctx)
	ip := in.IPAddress
	if ip == "" {
		ip = meta.IPAddress
	}
	userAgent := in.UserAgent
	if userAgent == "" {
		userAgent = meta.UserAgent
	}

	row := &auditDatamodel.LoginEvent{
		UserID:     in.UserID,
		Success:    in.Success,
		IPAddress:  NormalizeIP(ip),
		UserAgent:  optionalString(userAgent),
		OccurredAt: r.now().UTC(),
	}
	if !in.Success {
		row.FailureReason = optionalString(in.FailureReason)
	}

	if err := r.repo.CreateLoginEvent(ctx, row); err != nil {
		r.logger.Error("failed to write login event", "success", in.Success, "error", err)
		return nil, fmt.Errorf("write login event: %w", err)
	}

	event := LoginEventFromDataModel(row)
	datastore.AfterCommit(ctx, func() {
		r.publish(ctx, events.NewLoginRecordedEvent(event.ID, event.UserID, event.Success, event, event.OccurredAt))
	})
	return event, nil
}

func (r *Recorder) publish(ctx context.Context, event events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish audit event", "event_type", event.EventType(), "error", err)
	}
}

// Snapshot serialises a before/after value. nil stays nil; raw JSON passes through.
func Snapshot(v interface{}) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	case []byte:
		return json.RawMessage(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}
