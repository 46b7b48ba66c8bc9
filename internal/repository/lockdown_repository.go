package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LockdownRepository interface {
	Load(ctx context.Context) (domain.LockdownState, error)
	Save(ctx context.Context, state domain.LockdownState) error
}

type GormLockdownRepository struct{ db *gorm.DB }

func NewLockdownRepository(db *gorm.DB) LockdownRepository { return &GormLockdownRepository{db: db} }

func (r *GormLockdownRepository) Load(ctx context.Context) (domain.LockdownState, error) {
	var rec domain.LockdownRecord
	err := r.db.WithContext(ctx).First(&rec, domain.LockdownRecordID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "lockdown", "load", "not_found")
			return domain.LockdownState{}, nil
		}
		observability.RecordRepositoryOperation(ctx, "lockdown", "load", "error")
		return domain.LockdownState{}, err
	}
	observability.RecordRepositoryOperation(ctx, "lockdown", "load", "success")
	return rec.State(), nil
}

func (r *GormLockdownRepository) Save(ctx context.Context, state domain.LockdownState) error {
	rec := domain.LockdownRecord{
		ID:          domain.LockdownRecordID,
		Active:      state.Active,
		Reason:      state.Reason,
		ActivatedAt: state.ActivatedAt,
		ActivatedBy: state.ActivatedBy,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "reason", "activated_at", "activated_by", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "lockdown", "save", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "lockdown", "save", "success")
	return nil
}
