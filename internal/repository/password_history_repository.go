package repository

import (
	"context"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"gorm.io/gorm"
)

type PasswordHistoryRepository interface {
	Append(ctx context.Context, entry *domain.PasswordHistory) error
	LastN(ctx context.Context, userID uint, n int) ([]domain.PasswordHistory, error)
}

type GormPasswordHistoryRepository struct{ db *gorm.DB }

func NewPasswordHistoryRepository(db *gorm.DB) PasswordHistoryRepository {
	return &GormPasswordHistoryRepository{db: db}
}

func (r *GormPasswordHistoryRepository) Append(ctx context.Context, entry *domain.PasswordHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "password_history", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "password_history", "append", "success")
	return nil
}

// LastN returns up to n entries for the user, newest first.
func (r *GormPasswordHistoryRepository) LastN(ctx context.Context, userID uint, n int) ([]domain.PasswordHistory, error) {
	var entries []domain.PasswordHistory
	if n <= 0 {
		return entries, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "password_history", "last_n", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "password_history", "last_n", "success")
	return entries, nil
}
