package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountFlagsRepository interface {
	Get(ctx context.Context, userID uint) (*domain.AccountSecurityFlags, error)
	SetLocked(ctx context.Context, userID uint, reason string, at time.Time) error
	ClearLocked(ctx context.Context, userID uint) error
	SetReauthRequired(ctx context.Context, userID uint, required bool) error
}

type GormAccountFlagsRepository struct{ db *gorm.DB }

func NewAccountFlagsRepository(db *gorm.DB) AccountFlagsRepository {
	return &GormAccountFlagsRepository{db: db}
}

// Get returns the flags for userID; a user without a row has all flags cleared.
func (r *GormAccountFlagsRepository) Get(ctx context.Context, userID uint) (*domain.AccountSecurityFlags, error) {
	var f domain.AccountSecurityFlags
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "account_flags", "get", "not_found")
			return &domain.AccountSecurityFlags{UserID: userID}, nil
		}
		observability.RecordRepositoryOperation(ctx, "account_flags", "get", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "account_flags", "get", "success")
	return &f, nil
}

func (r *GormAccountFlagsRepository) SetLocked(ctx context.Context, userID uint, reason string, at time.Time) error {
	row := domain.AccountSecurityFlags{UserID: userID, Locked: true, LockReason: reason, LockedAt: &at, UpdatedAt: at}
	return r.upsert(ctx, "set_locked", &row, []string{"locked", "lock_reason", "locked_at", "updated_at"})
}

func (r *GormAccountFlagsRepository) ClearLocked(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Model(&domain.AccountSecurityFlags{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"locked": false, "lock_reason": "", "locked_at": nil, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "account_flags", "clear_locked", "error")
		return res.Error
	}
	observability.RecordRepositoryOperation(ctx, "account_flags", "clear_locked", "success")
	return nil
}

func (r *GormAccountFlagsRepository) SetReauthRequired(ctx context.Context, userID uint, required bool) error {
	row := domain.AccountSecurityFlags{UserID: userID, ReauthRequired: required, UpdatedAt: time.Now().UTC()}
	return r.upsert(ctx, "set_reauth_required", &row, []string{"reauth_required", "updated_at"})
}

func (r *GormAccountFlagsRepository) upsert(ctx context.Context, op string, row *domain.AccountSecurityFlags, columns []string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(row).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "account_flags", op, "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "account_flags", op, "success")
	return nil
}
