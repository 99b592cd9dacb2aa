package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/rewards"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RewardSettingsHandler manages per-place and default reward settings.
type RewardSettingsHandler struct {
	db    *gorm.DB
	store *rewards.SettingsStore
}

// NewRewardSettingsHandler constructs a RewardSettingsHandler.
func NewRewardSettingsHandler(db *gorm.DB, store *rewards.SettingsStore) *RewardSettingsHandler {
	return &RewardSettingsHandler{db: db, store: store}
}

// settingsDTO defines the reward settings payload for both directions.
type settingsDTO struct {
	PlaceID               *uint64                 `json:"place_id"`
	CalculationMethod     string                  `json:"calculation_method"`
	PointsPerBooking      int64                   `json:"points_per_booking"`
	PointsPerCurrencyUnit float64                 `json:"points_per_currency_unit"`
	RedemptionRules       *models.RedemptionRules `json:"redemption_rules"`
	IsActive              bool                    `json:"is_active"`
}

func toSettingsDTO(row *models.RewardSettings) (*settingsDTO, error) {
	rules, errDecode := row.DecodeRedemptionRules()
	if errDecode != nil {
		return nil, errDecode
	}
	return &settingsDTO{
		PlaceID:               row.PlaceID,
		CalculationMethod:     row.CalculationMethod,
		PointsPerBooking:      row.PointsPerBooking,
		PointsPerCurrencyUnit: row.PointsPerCurrencyUnit,
		RedemptionRules:       rules,
		IsActive:              row.IsActive,
	}, nil
}

// optionalPlaceIDParam parses the place_id query parameter; absence selects
// the platform default row.
func optionalPlaceIDParam(c *gin.Context) (*uint64, bool) {
	raw := c.Query("place_id")
	if raw == "" {
		return nil, true
	}
	placeID, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || placeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid place_id"})
		return nil, false
	}
	return &placeID, true
}

// Get returns the stored settings row for a place, or the platform default
// when no place_id is given.
func (h *RewardSettingsHandler) Get(c *gin.Context) {
	placeID, ok := optionalPlaceIDParam(c)
	if !ok {
		return
	}

	var row models.RewardSettings
	query := h.db.WithContext(c.Request.Context())
	if placeID == nil {
		query = query.Where("place_id IS NULL")
	} else {
		query = query.Where("place_id = ?", *placeID)
	}
	if errFind := query.First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "settings not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	dto, errDTO := toSettingsDTO(&row)
	if errDTO != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode redemption rules failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": dto})
}

// Upsert creates or replaces the settings for a place, or the platform
// default when place_id is null.
func (h *RewardSettingsHandler) Upsert(c *gin.Context) {
	var body settingsDTO
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch body.CalculationMethod {
	case models.CalculationFixedPerBooking, models.CalculationVolumeBased:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown calculation_method"})
		return
	}
	if body.PointsPerBooking < 0 || body.PointsPerCurrencyUnit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accrual rates must be non-negative"})
		return
	}
	if body.RedemptionRules != nil && body.RedemptionRules.RatePerPoint < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rate_per_point must be non-negative"})
		return
	}

	row := models.RewardSettings{
		PlaceID:               body.PlaceID,
		CalculationMethod:     body.CalculationMethod,
		PointsPerBooking:      body.PointsPerBooking,
		PointsPerCurrencyUnit: body.PointsPerCurrencyUnit,
		IsActive:              body.IsActive,
	}
	if body.RedemptionRules != nil {
		data, errMarshal := json.Marshal(body.RedemptionRules)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid redemption rules"})
			return
		}
		row.RedemptionRules = datatypes.JSON(data)
	}

	if errUpsert := h.store.Upsert(c.Request.Context(), &row); errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save settings failed"})
		return
	}

	dto, errDTO := toSettingsDTO(&row)
	if errDTO != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode redemption rules failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": dto})
}
