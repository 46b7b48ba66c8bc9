package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"gorm.io/gorm"
)

type SecurityEventFilter struct {
	Severity  domain.Severity
	EventType string
	UserID    *uint
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type SecurityEventRepository interface {
	Create(ctx context.Context, event *domain.SecurityEvent) error
	List(ctx context.Context, filter SecurityEventFilter) ([]domain.SecurityEvent, int64, error)
	CountBySeveritySince(ctx context.Context, severities []domain.Severity, since time.Time) (int64, error)
	DistinctTypesSince(ctx context.Context, types []string, severities []domain.Severity, since time.Time) ([]string, error)
	LatestCreatedAt(ctx context.Context, severity domain.Severity) (*time.Time, error)
}

type GormSecurityEventRepository struct{ db *gorm.DB }

func NewSecurityEventRepository(db *gorm.DB) SecurityEventRepository {
	return &GormSecurityEventRepository{db: db}
}

func (r *GormSecurityEventRepository) Create(ctx context.Context, event *domain.SecurityEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "create", "success")
	return nil
}

// List returns events matching filter newest first together with the unpaged total.
func (r *GormSecurityEventRepository) List(ctx context.Context, filter SecurityEventFilter) ([]domain.SecurityEvent, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.SecurityEvent{})
		if filter.Severity != "" {
			q = q.Where("severity = ?", filter.Severity)
		}
		if filter.EventType != "" {
			q = q.Where("event_type = ?", filter.EventType)
		}
		if filter.UserID != nil {
			q = q.Where("user_id = ?", *filter.UserID)
		}
		if filter.From != nil {
			q = q.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			q = q.Where("created_at <= ?", *filter.To)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "list", "error")
		return nil, 0, err
	}
	w := NormalizeWindow(filter.Limit, filter.Offset)
	var events []domain.SecurityEvent
	err := scoped().
		Order("created_at DESC").
		Order("id DESC").
		Limit(w.Limit).
		Offset(w.Offset).
		Find(&events).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "list", "error")
		return nil, 0, err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "list", "success")
	return events, total, nil
}

func (r *GormSecurityEventRepository) CountBySeveritySince(ctx context.Context, severities []domain.Severity, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.SecurityEvent{}).
		Where("severity IN ? AND created_at > ?", severities, since).
		Count(&n).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "count_by_severity_since", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "count_by_severity_since", "success")
	return n, nil
}

func (r *GormSecurityEventRepository) DistinctTypesSince(ctx context.Context, types []string, severities []domain.Severity, since time.Time) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).Model(&domain.SecurityEvent{}).
		Distinct("event_type").
		Where("event_type IN ? AND severity IN ? AND created_at > ?", types, severities, since).
		Order("event_type ASC").
		Pluck("event_type", &out).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "distinct_types_since", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "distinct_types_since", "success")
	return out, nil
}

// LatestCreatedAt returns the creation time of the newest event with severity, or nil.
func (r *GormSecurityEventRepository) LatestCreatedAt(ctx context.Context, severity domain.Severity) (*time.Time, error) {
	var e domain.SecurityEvent
	err := r.db.WithContext(ctx).
		Where("severity = ?", severity).
		Order("created_at DESC").
		Order("id DESC").
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "security_event", "latest_created_at", "not_found")
			return nil, nil
		}
		observability.RecordRepositoryOperation(ctx, "security_event", "latest_created_at", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "latest_created_at", "success")
	at := e.CreatedAt
	return &at, nil
}
