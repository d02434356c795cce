package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	"github.com/frahmantamala/employee-management/pkg/export"
)

const (
	defaultListLimit      = 50
	maxListLimit          = 500
	defaultActivityLimit  = 10
	failedLoginWindow     = time.Hour
	blockedUserWindow     = 24 * time.Hour
	suspiciousIPWindow    = 24 * time.Hour
	failedLoginDanger     = 10
	suspiciousIPThreshold = 5
)

type RepositoryAPI interface {
	WriterAPI
	ListEntries(ctx context.Context, filter Filter) ([]*Entry, error)
	ListLoginEvents(ctx context.Context, filter LoginFilter) ([]*LoginEvent, error)
	CountFailedLoginsSince(ctx context.Context, since time.Time) (int64, error)
	CountActionSince(ctx context.Context, action string, since time.Time) (int64, error)
	FailedLoginsByIP(ctx context.Context, since time.Time, moreThan int64) ([]IPFailureCount, error)
}

// Activity is one row of the merged dashboard feed.
type Activity struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Target    *string   `json:"target"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Alert struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExportFile is a rendered audit export ready to be streamed as an attachment.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

type Service struct {
	repo        RepositoryAPI
	recorder    *Recorder
	logger      *slog.Logger
	exportLimit int
}

func NewService(repo RepositoryAPI, recorder *Recorder, exportLimit int, logger *slog.Logger) *Service {
	if exportLimit <= 0 {
		exportLimit = 10000
	}
	return &Service{
		repo:        repo,
		recorder:    recorder,
		logger:      logger,
		exportLimit: exportLimit,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, filter Filter) ([]*Entry, error) {
	filter.Limit = clampLimit(filter.Limit)
	entries, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		return nil, internal.NewInternalError("failed to list audit logs", err)
	}
	return entries, nil
}

func (s *Service) ListLoginEvents(ctx context.Context, filter LoginFilter) ([]*LoginEvent, error) {
	filter.Limit = clampLimit(filter.Limit)
	loginEvents, err := s.repo.ListLoginEvents(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list login events", "error", err)
		return nil, internal.NewInternalError("failed to list login events", err)
	}
	return loginEvents, nil
}

// RecentActivity merges the newest audit entries and login events into one
// reverse-chronological feed of at most limit items.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	entries, err := s.repo.ListEntries(ctx, Filter{Limit: limit})
	if err != nil {
		return nil, internal.NewInternalError("failed to load recent activity", err)
	}
	logins, err := s.repo.ListLoginEvents(ctx, LoginFilter{Limit: limit})
	if err != nil {
		return nil, internal.NewInternalError("failed to load recent activity", err)
	}

	feed := make([]Activity, 0, len(entries)+len(logins))
	for _, e := range entries {
		actor := "System User"
		if e.ActorName != "" {
			actor = e.ActorName
		}
		var target *string
		if e.TargetUserName != "" {
			name := e.TargetUserName
			target = &name
		}
		status := StatusFailed
		if e.Status == StatusSuccess {
			status = StatusSuccess
		}
		feed = append(feed, Activity{
			ID:        "audit_" + strconv.FormatInt(e.ID, 10),
			Type:      "audit",
			Action:    e.Action,
			User:      actor,
			Target:    target,
			Status:    status,
			Timestamp: e.CreatedAt,
		})
	}
	for _, l := range logins {
		item := Activity{
			ID:        "login_" + strconv.FormatInt(l.ID, 10),
			Type:      "login",
			Action:    "Login Failed",
			User:      "Unknown User",
			Status:    StatusFailed,
			Timestamp: l.OccurredAt,
		}
		if l.Success {
			item.Action = "Login Success"
			item.Status = StatusSuccess
		}
		if l.UserName != "" {
			item.User = l.UserName
		}
		if l.UserEmail != "" {
			email := l.UserEmail
			item.Target = &email
		}
		feed = append(feed, item)
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Timestamp.After(feed[j].Timestamp)
	})
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

// SecurityAlerts derives threshold alerts from the last hour of failed logins,
// the last day of blocks and the last day of failures per source address.
func (s *Service) SecurityAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	now = now.UTC()

	failed, err := s.repo.CountFailedLoginsSince(ctx, now.Add(-failedLoginWindow))
	if err != nil {
		return nil, internal.NewInternalError("failed to compute security alerts", err)
	}
	blocked, err := s.repo.CountActionSince(ctx, ActionUserBlocked, now.Add(-blockedUserWindow))
	if err != nil {
		return nil, internal.NewInternalError("failed to compute security alerts", err)
	}
	suspicious, err := s.repo.FailedLoginsByIP(ctx, now.Add(-suspiciousIPWindow), suspiciousIPThreshold)
	if err != nil {
		return nil, internal.NewInternalError("failed to compute security alerts", err)
	}

	var alerts []Alert
	if failed > 0 {
		alert := Alert{
			ID:          "failed_logins",
			Type:        "warning",
			Title:       fmt.Sprintf("%d failed login attempts in the last hour", failed),
			Description: "Monitor for potential security threats",
			Timestamp:   now,
		}
		if failed > failedLoginDanger {
			alert.Type = "danger"
			alert.Description = "Possible security threat detected"
		}
		alerts = append(alerts, alert)
	}
	if blocked > 0 {
		alerts = append(alerts, Alert{
			ID:          "blocked_users",
			Type:        "warning",
			Title:       fmt.Sprintf("%d users blocked in the last 24 hours", blocked),
			Description: "Review blocked user activities",
			Timestamp:   now,
		})
	}
	if len(suspicious) > 0 {
		alerts = append(alerts, Alert{
			ID:          "suspicious_ips",
			Type:        "danger",
			Title:       fmt.Sprintf("%d IP addresses with excessive failed login attempts", len(suspicious)),
			Description: "Potential brute force attack detected",
			Timestamp:   now,
		})
	}
	if len(alerts) == 0 {
		alerts = append(alerts, Alert{
			ID:          "all_clear",
			Type:        "success",
			Title:       "All systems operational",
			Description: "Security monitoring active",
			Timestamp:   now,
		})
	}
	return alerts, nil
}

var exportHeaders = []string{
	"Timestamp", "Action", "Actor", "Target User", "Target Table", "Target ID",
	"Status", "Details", "IP Address", "User Agent",
}

// Export renders the filtered audit log. The export itself is audited.
func (s *Service) Export(ctx context.Context, format export.Format, filter Filter, now time.Time) (*ExportFile, error) {
	filter.Limit = s.exportLimit
	filter.Offset = 0
	entries, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, internal.NewInternalError("failed to load audit logs for export", err)
	}

	dataset := export.Dataset{Headers: exportHeaders, Rows: make([]map[string]string, 0, len(entries))}
	for _, e := range entries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Timestamp":    e.CreatedAt.UTC().Format(time.RFC3339),
			"Action":       ActionLabel(e.Action),
			"Actor":        nameOr(e.ActorName, e.ActorID, "System"),
			"Target User":  nameOr(e.TargetUserName, e.TargetUserID, ""),
			"Target Table": deref(e.TargetTable),
			"Target ID":    idString(e.TargetID),
			"Status":       e.Status,
			"Details":      deref(e.Details),
			"IP Address":   deref(e.IPAddress),
			"User Agent":   deref(e.UserAgent),
		})
	}

	renderer := export.RendererFor(format)
	data, err := renderer.Render(dataset, "Audit Log Export")
	if err != nil {
		return nil, internal.NewInternalError("failed to render audit export", err)
	}

	file := &ExportFile{
		Name:        fmt.Sprintf("audit-export-%s.%s", dates.Format(now), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
		Rows:        len(entries),
	}

	if s.recorder != nil {
		_, err := s.recorder.RecordAudit(ctx, Input{
			Action:      ActionAuditExported,
			TargetTable: "audit_log",
			Details:     fmt.Sprintf("Exported %d audit entries as %s", len(entries), renderer.Extension()),
		})
		if err != nil {
			s.logger.Warn("failed to audit export", "error", err)
		}
	}

	s.logger.Info("audit log exported", "format", renderer.Extension(), "rows", len(entries))
	return file, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func nameOr(name string, id *int64, fallback string) string {
	if name != "" {
		return name
	}
	if id != nil {
		return "#" + strconv.FormatInt(*id, 10)
	}
	return fallback
}

func idString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
