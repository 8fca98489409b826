package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"feature-flag-service/internal/domain"
	"feature-flag-service/internal/observability"
)

var (
	ErrFlagNotFound = errors.New("feature flag not found")
	ErrFlagExists   = errors.New("feature flag already exists")
)

type FlagRepository interface {
	Create(ctx context.Context, flag *domain.FeatureFlag) error
	FindByKey(ctx context.Context, key string) (*domain.FeatureFlag, error)
	List(ctx context.Context) ([]domain.FeatureFlag, error)
	UpdateEnabled(ctx context.Context, key string, enabled bool) error
	SetOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string, enabled bool) error
	RemoveOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string) error
	Delete(ctx context.Context, key string) error
}

type GormFlagRepository struct{ db *gorm.DB }

func NewFlagRepository(db *gorm.DB) FlagRepository {
	return &GormFlagRepository{db: db}
}

func (r *GormFlagRepository) Create(ctx context.Context, flag *domain.FeatureFlag) error {
	if err := r.db.WithContext(ctx).Create(flag).Error; err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(ctx, "flag", "create", "conflict")
			return ErrFlagExists
		}
		observability.RecordRepositoryOperation(ctx, "flag", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "flag", "create", "success")
	return nil
}

func (r *GormFlagRepository) FindByKey(ctx context.Context, key string) (*domain.FeatureFlag, error) {
	var flag domain.FeatureFlag
	err := r.db.WithContext(ctx).Preload("Overrides", func(db *gorm.DB) *gorm.DB {
		return db.Order("type asc").Order("entity_id asc")
	}).Where("key = ?", key).First(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "flag", "find_by_key", "not_found")
			return nil, ErrFlagNotFound
		}
		observability.RecordRepositoryOperation(ctx, "flag", "find_by_key", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "flag", "find_by_key", "success")
	return &flag, nil
}

func (r *GormFlagRepository) List(ctx context.Context) ([]domain.FeatureFlag, error) {
	var flags []domain.FeatureFlag
	err := r.db.WithContext(ctx).Preload("Overrides", func(db *gorm.DB) *gorm.DB {
		return db.Order("type asc").Order("entity_id asc")
	}).Order("key asc").Find(&flags).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "flag", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "flag", "list", "success")
	return flags, nil
}

func (r *GormFlagRepository) UpdateEnabled(ctx context.Context, key string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&domain.FeatureFlag{}).Where("key = ?", key).Update("enabled", enabled)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "flag", "update_enabled", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "flag", "update_enabled", "not_found")
		return ErrFlagNotFound
	}
	observability.RecordRepositoryOperation(ctx, "flag", "update_enabled", "success")
	return nil
}

func (r *GormFlagRepository) SetOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string, enabled bool) error {
	flagID, err := r.flagID(ctx, key)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "flag_override", "set", outcomeFor(err))
		return err
	}
	override := domain.FlagOverride{FlagID: flagID, Type: typ, EntityID: entityID, Enabled: enabled}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "flag_id"}, {Name: "type"}, {Name: "entity_id"}},
		DoUpdates: clause.Assignments(map[string]any{"enabled": enabled}),
	}).Create(&override).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "flag_override", "set", "error")
		return err
	}
	// The parent flag's updated_at tracks override mutations too.
	r.touch(ctx, flagID)
	observability.RecordRepositoryOperation(ctx, "flag_override", "set", "success")
	return nil
}

func (r *GormFlagRepository) RemoveOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string) error {
	flagID, err := r.flagID(ctx, key)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "flag_override", "remove", outcomeFor(err))
		return err
	}
	// Removing an entry that was already absent is not an error.
	res := r.db.WithContext(ctx).
		Where("flag_id = ? AND type = ? AND entity_id = ?", flagID, typ, entityID).
		Delete(&domain.FlagOverride{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "flag_override", "remove", "error")
		return res.Error
	}
	if res.RowsAffected > 0 {
		r.touch(ctx, flagID)
	}
	observability.RecordRepositoryOperation(ctx, "flag_override", "remove", "success")
	return nil
}

func (r *GormFlagRepository) Delete(ctx context.Context, key string) error {
	flagID, err := r.flagID(ctx, key)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "flag", "delete", outcomeFor(err))
		return err
	}
	// Override rows go with the flag; sqlite test databases do not always
	// enforce the FK cascade, so delete them explicitly.
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flag_id = ?", flagID).Delete(&domain.FlagOverride{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.FeatureFlag{}, flagID).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "flag", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "flag", "delete", "success")
	return nil
}

func (r *GormFlagRepository) flagID(ctx context.Context, key string) (uint, error) {
	var flag domain.FeatureFlag
	err := r.db.WithContext(ctx).Select("id").Where("key = ?", key).First(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrFlagNotFound
		}
		return 0, err
	}
	return flag.ID, nil
}

func (r *GormFlagRepository) touch(ctx context.Context, flagID uint) {
	r.db.WithContext(ctx).Model(&domain.FeatureFlag{}).Where("id = ?", flagID).
		Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP"))
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrFlagNotFound) {
		return "not_found"
	}
	return "error"
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// sqlite (used by the test databases) reports unique violations as plain
	// strings through the driver.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
