package repository

import (
	"context"
	"errors"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"gorm.io/gorm"
)

type SettingsRepository interface {
	// Get fails with domain.ErrSettingsNotInitialized until EnsureInitialized ran.
	Get(ctx context.Context) (*domain.SystemSettings, error)
	Save(ctx context.Context, settings *domain.SystemSettings) error
	// EnsureInitialized stores defaults if no settings exist and returns the stored row.
	EnsureInitialized(ctx context.Context, defaults domain.SystemSettings) (*domain.SystemSettings, error)
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*domain.SystemSettings, error) {
	var s domain.SystemSettings
	if err := r.db.WithContext(ctx).First(&s, domain.SettingsID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSettingsNotInitialized
		}
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *domain.SystemSettings) error {
	settings.ID = domain.SettingsID
	return r.db.WithContext(ctx).Save(settings).Error
}

func (r *settingsRepository) EnsureInitialized(ctx context.Context, defaults domain.SystemSettings) (*domain.SystemSettings, error) {
	defaults.ID = domain.SettingsID
	var s domain.SystemSettings
	err := r.db.WithContext(ctx).
		Where(domain.SystemSettings{ID: domain.SettingsID}).
		Attrs(defaults).
		FirstOrCreate(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}
