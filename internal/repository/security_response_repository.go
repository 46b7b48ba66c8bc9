package repository

import (
	"context"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SecurityResponseRepository interface {
	Record(ctx context.Context, rec *domain.SecurityResponseRecord) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]domain.SecurityResponseRecord, error)
}

type GormSecurityResponseRepository struct{ db *gorm.DB }

func NewSecurityResponseRepository(db *gorm.DB) SecurityResponseRepository {
	return &GormSecurityResponseRepository{db: db}
}

// Record inserts rec unless a row with the same action, target and executed_at exists.
// The boolean reports whether a new row was written.
func (r *GormSecurityResponseRepository) Record(ctx context.Context, rec *domain.SecurityResponseRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "action"}, {Name: "target"}, {Name: "executed_at"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "security_response", "record", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "security_response", "record", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSecurityResponseRepository) ListRecent(ctx context.Context, limit int) ([]domain.SecurityResponseRecord, error) {
	var rows []domain.SecurityResponseRecord
	w := NormalizeWindow(limit, 0)
	err := r.db.WithContext(ctx).
		Order("executed_at DESC").
		Order("id DESC").
		Limit(w.Limit).
		Find(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "security_response", "list_recent", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "security_response", "list_recent", "success")
	return rows, nil
}
