package database

import (
	"gorm.io/gorm"

	"feature-flag-service/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.FeatureFlag{},
		&domain.FlagOverride{},
	)
}
