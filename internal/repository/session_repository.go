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

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	CreateWithinLimit(ctx context.Context, s *domain.Session, maxLive int) ([]domain.Session, error)
	FindByTokenRef(ctx context.Context, tokenRef string) (*domain.Session, error)
	TouchLastUsed(ctx context.Context, tokenRef string, at time.Time) error
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error)
	CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error)
	DeleteByTokenRef(ctx context.Context, tokenRef string) (int64, error)
	DeleteByTokenRefForUser(ctx context.Context, userID uint, tokenRef string) (int64, error)
	DeleteOthersByUser(ctx context.Context, userID uint, keepTokenRef string) (int64, error)
	DeleteByUserID(ctx context.Context, userID uint) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

// CreateWithinLimit inserts s after evicting least-recently-used live sessions so that the
// user holds at most maxLive live sessions afterwards. Evicted sessions are returned.
func (r *GormSessionRepository) CreateWithinLimit(ctx context.Context, s *domain.Session, maxLive int) ([]domain.Session, error) {
	var evicted []domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live []domain.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND expires_at > ?", s.UserID, s.CreatedAt).
			Order("last_used_at ASC").
			Order("created_at ASC").
			Order("id ASC").
			Find(&live).Error
		if err != nil {
			return err
		}
		if maxLive > 0 && len(live) >= maxLive {
			evicted = live[:len(live)-maxLive+1]
			ids := make([]uint, 0, len(evicted))
			for _, e := range evicted {
				ids = append(ids, e.ID)
			}
			if err := tx.Where("id IN ?", ids).Delete(&domain.Session{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(s).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create_within_limit", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create_within_limit", "success")
	return evicted, nil
}

func (r *GormSessionRepository) FindByTokenRef(ctx context.Context, tokenRef string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("token_ref = ?", tokenRef).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_token_ref", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_token_ref", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_token_ref", "success")
	return &s, nil
}

func (r *GormSessionRepository) TouchLastUsed(ctx context.Context, tokenRef string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("token_ref = ?", tokenRef).
		Update("last_used_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "touch_last_used", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "touch_last_used", "success")
	return nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ? AND expires_at > ?", userID, now).
		Order("last_used_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

func (r *GormSessionRepository) CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "count_active_by_user_id", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "count_active_by_user_id", "success")
	return count, nil
}

func (r *GormSessionRepository) DeleteByTokenRef(ctx context.Context, tokenRef string) (int64, error) {
	return r.delete(ctx, "delete_by_token_ref", r.db.WithContext(ctx).Where("token_ref = ?", tokenRef))
}

func (r *GormSessionRepository) DeleteByTokenRefForUser(ctx context.Context, userID uint, tokenRef string) (int64, error) {
	return r.delete(ctx, "delete_by_token_ref_for_user", r.db.WithContext(ctx).Where("user_id = ? AND token_ref = ?", userID, tokenRef))
}

func (r *GormSessionRepository) DeleteOthersByUser(ctx context.Context, userID uint, keepTokenRef string) (int64, error) {
	return r.delete(ctx, "delete_others_by_user", r.db.WithContext(ctx).Where("user_id = ? AND token_ref <> ?", userID, keepTokenRef))
}

func (r *GormSessionRepository) DeleteByUserID(ctx context.Context, userID uint) (int64, error) {
	return r.delete(ctx, "delete_by_user_id", r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *GormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.delete(ctx, "delete_expired", r.db.WithContext(ctx).Where("expires_at < ?", now))
}

func (r *GormSessionRepository) delete(ctx context.Context, op string, scoped *gorm.DB) (int64, error) {
	res := scoped.Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", op, "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", op, "success")
	return res.RowsAffected, nil
}
