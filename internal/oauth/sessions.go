package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/models"
)

// SessionRepository persists handshake state tokens.
type SessionRepository interface {
	Create(ctx context.Context, s *models.OAuthSession) error
	// Consume deletes and returns the live session for state. Expired, unknown
	// and already consumed states all yield errs.ErrInvalidOrExpiredState.
	Consume(ctx context.Context, state string, now time.Time) (*models.OAuthSession, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GormSessionRepository implements SessionRepository on gorm.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a session repository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, s *models.OAuthSession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to create oauth session: %w", err)
	}
	return nil
}

func (r *GormSessionRepository) Consume(ctx context.Context, state string, now time.Time) (*models.OAuthSession, error) {
	var session models.OAuthSession
	err := r.db.WithContext(ctx).
		Where("state = ? AND expires_at > ?", state, now).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrInvalidOrExpiredState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth session: %w", err)
	}

	// Only the request whose delete removes the row may proceed.
	res := r.db.WithContext(ctx).
		Where("id = ? AND state = ?", session.ID, state).
		Delete(&models.OAuthSession{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to consume oauth session: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, errs.ErrInvalidOrExpiredState
	}
	return &session, nil
}

func (r *GormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.OAuthSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired oauth sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
