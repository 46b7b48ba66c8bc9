package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"gorm.io/gorm"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	CountByActionForIPSince(ctx context.Context, action, ip string, since time.Time) (int64, error)
	CountByActorSince(ctx context.Context, actorID uint, actions []string, since time.Time) (int64, error)
	CountByActionSince(ctx context.Context, action string, since time.Time) (int64, error)
	CountDistinctIPsByActionSince(ctx context.Context, action string, since time.Time) (int64, error)
	DistinctIPsForActor(ctx context.Context, actorID uint, action string, since time.Time) ([]string, error)
	ListByAction(ctx context.Context, action string, limit int) ([]domain.AuditLog, error)
}

type GormAuditLogRepository struct{ db *gorm.DB }

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository { return &GormAuditLogRepository{db: db} }

func (r *GormAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "audit_log", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "audit_log", "create", "success")
	return nil
}

func (r *GormAuditLogRepository) CountByActionForIPSince(ctx context.Context, action, ip string, since time.Time) (int64, error) {
	return r.count(ctx, "count_by_action_for_ip_since",
		r.db.WithContext(ctx).Model(&domain.AuditLog{}).
			Where("action = ? AND ip_address = ? AND created_at > ?", action, ip, since))
}

func (r *GormAuditLogRepository) CountByActorSince(ctx context.Context, actorID uint, actions []string, since time.Time) (int64, error) {
	return r.count(ctx, "count_by_actor_since",
		r.db.WithContext(ctx).Model(&domain.AuditLog{}).
			Where("actor_id = ? AND action IN ? AND created_at > ?", actorID, actions, since))
}

func (r *GormAuditLogRepository) CountByActionSince(ctx context.Context, action string, since time.Time) (int64, error) {
	return r.count(ctx, "count_by_action_since",
		r.db.WithContext(ctx).Model(&domain.AuditLog{}).
			Where("action = ? AND created_at > ?", action, since))
}

func (r *GormAuditLogRepository) CountDistinctIPsByActionSince(ctx context.Context, action string, since time.Time) (int64, error) {
	return r.count(ctx, "count_distinct_ips_by_action_since",
		r.db.WithContext(ctx).Model(&domain.AuditLog{}).
			Distinct("ip_address").
			Where("action = ? AND created_at > ?", action, since))
}

func (r *GormAuditLogRepository) DistinctIPsForActor(ctx context.Context, actorID uint, action string, since time.Time) ([]string, error) {
	var ips []string
	err := r.db.WithContext(ctx).Model(&domain.AuditLog{}).
		Distinct("ip_address").
		Where("actor_id = ? AND action = ? AND created_at > ? AND ip_address <> ''", actorID, action, since).
		Pluck("ip_address", &ips).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "audit_log", "distinct_ips_for_actor", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "audit_log", "distinct_ips_for_actor", "success")
	return ips, nil
}

// ListByAction returns the newest rows for action.
func (r *GormAuditLogRepository) ListByAction(ctx context.Context, action string, limit int) ([]domain.AuditLog, error) {
	var rows []domain.AuditLog
	q := r.db.WithContext(ctx).Where("action = ?", action).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "audit_log", "list_by_action", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "audit_log", "list_by_action", "success")
	return rows, nil
}

func (r *GormAuditLogRepository) count(ctx context.Context, op string, q *gorm.DB) (int64, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "audit_log", op, "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "audit_log", op, "success")
	return n, nil
}
