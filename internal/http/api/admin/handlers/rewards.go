package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/rewards"
	"gorm.io/gorm"
)

// RewardsAdminHandler exposes account inspection and manual adjustments.
type RewardsAdminHandler struct {
	db      *gorm.DB
	manager *rewards.AccountManager
}

// NewRewardsAdminHandler constructs a RewardsAdminHandler.
func NewRewardsAdminHandler(db *gorm.DB, manager *rewards.AccountManager) *RewardsAdminHandler {
	return &RewardsAdminHandler{db: db, manager: manager}
}

// adminAccountDTO defines the account payload for admin listings.
type adminAccountDTO struct {
	ID                  uint64    `json:"id"`
	UserID              uint64    `json:"user_id"`
	PlaceID             uint64    `json:"place_id"`
	PointsBalance       int64     `json:"points_balance"`
	TotalPointsEarned   int64     `json:"total_points_earned"`
	TotalPointsRedeemed int64     `json:"total_points_redeemed"`
	Tier                string    `json:"tier"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toAdminAccountDTO(account *models.RewardAccount) adminAccountDTO {
	return adminAccountDTO{
		ID:                  account.ID,
		UserID:              account.UserID,
		PlaceID:             account.PlaceID,
		PointsBalance:       account.PointsBalance,
		TotalPointsEarned:   account.TotalPointsEarned,
		TotalPointsRedeemed: account.TotalPointsRedeemed,
		Tier:                account.Tier,
		CreatedAt:           account.CreatedAt,
		UpdatedAt:           account.UpdatedAt,
	}
}

// Accounts returns a page of reward accounts, optionally filtered by place or
// user.
func (h *RewardsAdminHandler) Accounts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.RewardAccount{})
	if placeID, errParse := strconv.ParseUint(c.Query("place_id"), 10, 64); errParse == nil && placeID > 0 {
		query = query.Where("place_id = ?", placeID)
	}
	if userID, errParse := strconv.ParseUint(c.Query("user_id"), 10, 64); errParse == nil && userID > 0 {
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count accounts failed"})
		return
	}

	var accounts []models.RewardAccount
	errFind := query.
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&accounts).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query accounts failed"})
		return
	}

	out := make([]adminAccountDTO, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAdminAccountDTO(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out, "total": total})
}

// Transactions returns a page of an account's ledger, newest first.
func (h *RewardsAdminHandler) Transactions(c *gin.Context) {
	accountID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || accountID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	entries, total, errList := h.manager.ListEntries(c.Request.Context(), accountID, page, pageSize)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query transactions failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": entries, "total": total})
}

// adjustRequest defines the request body for a manual adjustment.
type adjustRequest struct {
	UserID      uint64 `json:"user_id"`
	PlaceID     uint64 `json:"place_id"`
	Delta       int64  `json:"delta"`
	Description string `json:"description"`
}

// Adjust applies a signed manual correction to a customer's balance.
func (h *RewardsAdminHandler) Adjust(c *gin.Context) {
	var body adjustRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.UserID == 0 || body.PlaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and place_id are required"})
		return
	}

	account, entry, errAdjust := h.manager.AdjustManually(c.Request.Context(), body.UserID, body.PlaceID, body.Delta, body.Description)
	if errAdjust != nil {
		switch {
		case errors.Is(errAdjust, rewards.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": errAdjust.Error()})
		case errors.Is(errAdjust, rewards.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "adjustment would overdraw the balance"})
		case errors.Is(errAdjust, rewards.ErrTransient):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, retry later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "adjust failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": toAdminAccountDTO(account), "entry": entry})
}
