package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/placebook/placebook/internal/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// settingsCacheTTL bounds how long a cached snapshot can lag behind an admin
// edit of the platform default row.
const settingsCacheTTL = 30 * time.Second

// SettingsStore resolves the active reward settings for a place, falling back
// to the platform default row. Snapshots may be served from an optional Redis
// cache; a nil cache client means every read goes to the database.
type SettingsStore struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewSettingsStore constructs a SettingsStore. cache may be nil.
func NewSettingsStore(db *gorm.DB, cache *redis.Client) *SettingsStore {
	return &SettingsStore{db: db, cache: cache}
}

func settingsCacheKey(placeID uint64) string {
	return fmt.Sprintf("placebook:reward-settings:place:%d", placeID)
}

// ActiveSettings returns the settings snapshot governing accrual and
// redemption at the given place: the place's own active row when present,
// otherwise the active platform default. ErrSettingsUnavailable when neither
// exists.
func (s *SettingsStore) ActiveSettings(ctx context.Context, placeID uint64) (*models.RewardSettings, error) {
	if cached := s.cacheGet(ctx, placeID); cached != nil {
		return cached, nil
	}

	var settings models.RewardSettings
	errFind := s.db.WithContext(ctx).
		Where("place_id = ? AND is_active = ?", placeID, true).
		Order("id DESC").
		First(&settings).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rewards: load settings: %w", errFind)
		}
		errFind = s.db.WithContext(ctx).
			Where("place_id IS NULL AND is_active = ?", true).
			Order("id DESC").
			First(&settings).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil, ErrSettingsUnavailable
			}
			return nil, fmt.Errorf("rewards: load default settings: %w", errFind)
		}
	}

	s.cacheSet(ctx, placeID, &settings)
	return &settings, nil
}

// Upsert creates or replaces the settings row for a place (nil placeID edits
// the platform default) and invalidates the cache entry. Find and write share
// one transaction; a concurrent insert of the same row loses on the
// place-uniqueness index rather than duplicating it.
func (s *SettingsStore) Upsert(ctx context.Context, settings *models.RewardSettings) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.RewardSettings
		query := tx
		if settings.PlaceID == nil {
			query = query.Where("place_id IS NULL")
		} else {
			query = query.Where("place_id = ?", *settings.PlaceID)
		}
		errFind := query.First(&existing).Error
		switch {
		case errFind == nil:
			settings.ID = existing.ID
			settings.CreatedAt = existing.CreatedAt
			return tx.Save(settings).Error
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			return tx.Create(settings).Error
		default:
			return errFind
		}
	})
	if errTx != nil {
		return fmt.Errorf("rewards: save settings: %w", errTx)
	}

	if settings.PlaceID != nil {
		s.Invalidate(ctx, *settings.PlaceID)
	}
	return nil
}

// Invalidate drops the cached snapshot for a place. Default-row edits are not
// tracked per place and propagate when cached snapshots expire.
func (s *SettingsStore) Invalidate(ctx context.Context, placeID uint64) {
	if s.cache == nil {
		return
	}
	if errDel := s.cache.Del(ctx, settingsCacheKey(placeID)).Err(); errDel != nil {
		log.WithError(errDel).Debug("rewards: settings cache invalidate failed")
	}
}

func (s *SettingsStore) cacheGet(ctx context.Context, placeID uint64) *models.RewardSettings {
	if s.cache == nil {
		return nil
	}
	data, errGet := s.cache.Get(ctx, settingsCacheKey(placeID)).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).Debug("rewards: settings cache read failed")
		}
		return nil
	}
	var settings models.RewardSettings
	if errUnmarshal := json.Unmarshal(data, &settings); errUnmarshal != nil {
		return nil
	}
	return &settings
}

func (s *SettingsStore) cacheSet(ctx context.Context, placeID uint64, settings *models.RewardSettings) {
	if s.cache == nil {
		return
	}
	data, errMarshal := json.Marshal(settings)
	if errMarshal != nil {
		return
	}
	if errSet := s.cache.Set(ctx, settingsCacheKey(placeID), data, settingsCacheTTL).Err(); errSet != nil {
		log.WithError(errSet).Debug("rewards: settings cache write failed")
	}
}
