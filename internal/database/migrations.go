package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeWeekStartLabels = "2025-08-18_normalize_week_start_labels"
	migrationFillBlankTimezones       = "2025-08-18_fill_blank_timezones"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeWeekStartLabels, apply: normalizeWeekStartLabels},
		{name: migrationFillBlankTimezones, apply: fillBlankTimezones},
	}

	applied := 0
	for _, migration := range migrations {
		ran, err := applyMigration(db, migration)
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if !ran {
			continue
		}
		applied++
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	if logger != nil && applied > 0 {
		logger.Info("database migrations complete", zap.Int("applied", applied))
	}
	return nil
}

// applyMigration runs one migration and records it in the same transaction. It reports false when
// the migration was already recorded.
func applyMigration(db *gorm.DB, migration migrationDefinition) (bool, error) {
	ran := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var record migrationRecord
		err := tx.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(tx); err != nil {
			return err
		}
		ran = true
		return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
	})
	return ran, err
}

// normalizeWeekStartLabels rewrites the short MON/SUN labels older deployments stored into the
// full names that the configuration surface writes today.
func normalizeWeekStartLabels(db *gorm.DB) error {
	if err := db.Model(&activity.CommunityConfig{}).
		Where("UPPER(TRIM(week_start)) = ?", "MON").
		Update("week_start", "MONDAY").Error; err != nil {
		return err
	}
	return db.Model(&activity.CommunityConfig{}).
		Where("UPPER(TRIM(week_start)) = ?", "SUN").
		Update("week_start", "SUNDAY").Error
}

func fillBlankTimezones(db *gorm.DB) error {
	return db.Model(&activity.CommunityConfig{}).
		Where("TRIM(timezone) = ''").
		Update("timezone", "UTC").Error
}
