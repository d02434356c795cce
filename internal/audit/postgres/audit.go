package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/employee-management/internal/audit"
	auditDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) CreateEntry(ctx context.Context, entry *auditDatamodel.AuditLog) error {
	return datastore.Conn(ctx, r.db).Create(entry).Error
}

func (r *AuditRepository) CreateLoginEvent(ctx context.Context, event *auditDatamodel.LoginEvent) error {
	return datastore.Conn(ctx, r.db).Create(event).Error
}

type entryRow struct {
	auditDatamodel.AuditLog
	ActorName      *string `gorm:"column:actor_name"`
	TargetUserName *string `gorm:"column:target_user_name"`
}

func (r *AuditRepository) ListEntries(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	query := datastore.Conn(ctx, r.db).
		Table("audit_log").
		Select("audit_log.*, actor.name AS actor_name, target.name AS target_user_name").
		Joins("LEFT JOIN users actor ON actor.id = audit_log.user_id").
		Joins("LEFT JOIN users target ON target.id = audit_log.target_user_id")

	if filter.Action != "" {
		query = query.Where("audit_log.action = ?", filter.Action)
	}
	if filter.ActorID != nil {
		query = query.Where("audit_log.user_id = ?", *filter.ActorID)
	}
	if filter.TargetUserID != nil {
		query = query.Where("audit_log.target_user_id = ?", *filter.TargetUserID)
	}
	if filter.Status != "" {
		query = query.Where("audit_log.status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("audit_log.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("audit_log.created_at < ?", filter.To.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []entryRow
	if err := query.Order("audit_log.created_at DESC, audit_log.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for i := range rows {
		entry := audit.EntryFromDataModel(&rows[i].AuditLog)
		if rows[i].ActorName != nil {
			entry.ActorName = *rows[i].ActorName
		}
		if rows[i].TargetUserName != nil {
			entry.TargetUserName = *rows[i].TargetUserName
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type loginRow struct {
	auditDatamodel.LoginEvent
	UserName  *string `gorm:"column:user_name"`
	UserEmail *string `gorm:"column:user_email"`
}

func (r *AuditRepository) ListLoginEvents(ctx context.Context, filter audit.LoginFilter) ([]*audit.LoginEvent, error) {
	query := datastore.Conn(ctx, r.db).
		Table("login_events").
		Select("login_events.*, users.name AS user_name, users.email AS user_email").
		Joins("LEFT JOIN users ON users.id = login_events.user_id")

	if filter.UserID != nil {
		query = query.Where("login_events.user_id = ?", *filter.UserID)
	}
	if filter.Success != nil {
		query = query.Where("login_events.success = ?", *filter.Success)
	}
	if filter.From != nil {
		query = query.Where("login_events.occurred_at >= ?", filter.From.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []loginRow
	if err := query.Order("login_events.occurred_at DESC, login_events.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]*audit.LoginEvent, 0, len(rows))
	for i := range rows {
		event := audit.LoginEventFromDataModel(&rows[i].LoginEvent)
		if rows[i].UserName != nil {
			event.UserName = *rows[i].UserName
		}
		if rows[i].UserEmail != nil {
			event.UserEmail = *rows[i].UserEmail
		}
		result = append(result, event)
	}
	return result, nil
}

func (r *AuditRepository) CountFailedLoginsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).
		Model(&auditDatamodel.LoginEvent{}).
		Where("success = ? AND occurred_at >= ?", false, since.UTC()).
		Count(&count).Error
	return count, err
}

func (r *AuditRepository) CountActionSince(ctx context.Context, action string, since time.Time) (int64, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).
		Model(&auditDatamodel.AuditLog{}).
		Where("action = ? AND created_at >= ?", action, since.UTC()).
		Count(&count).Error
	return count, err
}

// FailedLoginsByIP groups failures by source address. Rows without an address are ignored.
func (r *AuditRepository) FailedLoginsByIP(ctx context.Context, since time.Time, moreThan int64) ([]audit.IPFailureCount, error) {
	var rows []audit.IPFailureCount
	err := datastore.Conn(ctx, r.db).
		Model(&auditDatamodel.LoginEvent{}).
		Select("ip_address, COUNT(*) AS failures").
		Where("success = ? AND occurred_at >= ? AND ip_address IS NOT NULL", false, since.UTC()).
		Group("ip_address").
		Having("COUNT(*) > ?", moreThan).
		Order("failures DESC").
		Scan(&rows).Error
	return rows, err
}
