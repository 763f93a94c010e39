package repository

import (
	"context"
	"errors"
	"fmt"

	"cinethos/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository defines the interface for user preference storage.
type PreferenceRepository interface {
	// GetLanguage returns the stored language of userID. found is false when
	// the user has no preference row.
	GetLanguage(ctx context.Context, userID int64) (lang string, found bool, err error)
	SaveLanguage(ctx context.Context, userID int64, username, lang string) error
}

// gormPreferenceRepository implements PreferenceRepository with GORM.
type gormPreferenceRepository struct {
	db *gorm.DB
}

// NewGormPreferenceRepository creates a repository on db.
func NewGormPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &gormPreferenceRepository{db: db}
}

func (r *gormPreferenceRepository) GetLanguage(ctx context.Context, userID int64) (string, bool, error) {
	var pref model.UserPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load preference for user %d: %w", userID, err)
	}
	return pref.Language, true, nil
}

// SaveLanguage inserts or updates the preference row of userID.
func (r *gormPreferenceRepository) SaveLanguage(ctx context.Context, userID int64, username, lang string) error {
	pref := model.UserPreference{UserID: userID, Username: username, Language: lang}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "language", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return fmt.Errorf("failed to save preference for user %d: %w", userID, err)
	}
	return nil
}
