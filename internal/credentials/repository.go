package credentials

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/models"
)

// Repository persists sealed credential records.
type Repository interface {
	// Get returns errs.ErrIdentityNotFound when no record exists.
	Get(ctx context.Context, identity string) (*models.Credential, error)
	// Upsert inserts or overwrites the record keyed by identity.
	Upsert(ctx context.Context, rec *models.Credential) error
}

// GormRepository implements Repository on gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a credentials repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Get(ctx context.Context, identity string) (*models.Credential, error) {
	var rec models.Credential
	err := r.db.WithContext(ctx).Where("identity = ?", identity).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", errs.ErrIdentityNotFound, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return &rec, nil
}

func (r *GormRepository) Upsert(ctx context.Context, rec *models.Credential) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_secret", "refresh_secret", "expiry", "encoding_version", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert credentials: %w", err)
	}
	return nil
}
