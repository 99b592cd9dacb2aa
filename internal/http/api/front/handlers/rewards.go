package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/rewards"
)

// RewardsFrontHandler handles customer-facing reward endpoints.
type RewardsFrontHandler struct {
	manager    *rewards.AccountManager
	redemption *rewards.RedemptionEngine
}

// NewRewardsFrontHandler constructs a RewardsFrontHandler.
func NewRewardsFrontHandler(manager *rewards.AccountManager, redemption *rewards.RedemptionEngine) *RewardsFrontHandler {
	return &RewardsFrontHandler{manager: manager, redemption: redemption}
}

// accountDTO defines the reward account response payload.
type accountDTO struct {
	ID                  uint64    `json:"id"`
	PlaceID             uint64    `json:"place_id"`
	PointsBalance       int64     `json:"points_balance"`
	TotalPointsEarned   int64     `json:"total_points_earned"`
	TotalPointsRedeemed int64     `json:"total_points_redeemed"`
	Tier                string    `json:"tier"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toAccountDTO(account *models.RewardAccount) accountDTO {
	return accountDTO{
		ID:                  account.ID,
		PlaceID:             account.PlaceID,
		PointsBalance:       account.PointsBalance,
		TotalPointsEarned:   account.TotalPointsEarned,
		TotalPointsRedeemed: account.TotalPointsRedeemed,
		Tier:                account.Tier,
		CreatedAt:           account.CreatedAt,
		UpdatedAt:           account.UpdatedAt,
	}
}

// entryDTO defines the ledger entry response payload.
type entryDTO struct {
	ID                 uint64    `json:"id"`
	BookingID          *uint64   `json:"booking_id,omitempty"`
	Type               string    `json:"type"`
	PointsChange       int64     `json:"points_change"`
	PointsBalanceAfter int64     `json:"points_balance_after"`
	Description        string    `json:"description"`
	CreatedAt          time.Time `json:"created_at"`
}

// placeIDParam parses the place_id query parameter.
func placeIDParam(c *gin.Context) (uint64, bool) {
	placeID, errParse := strconv.ParseUint(c.Query("place_id"), 10, 64)
	if errParse != nil || placeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "place_id is required"})
		return 0, false
	}
	return placeID, true
}

// Account returns the customer's reward account at a place, or null when the
// customer is not enrolled.
func (h *RewardsFrontHandler) Account(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	placeID, ok := placeIDParam(c)
	if !ok {
		return
	}

	account, errGet := h.manager.GetAccount(c.Request.Context(), userID, placeID)
	if errGet != nil {
		if errors.Is(errGet, rewards.ErrAccountNotFound) {
			c.JSON(http.StatusOK, gin.H{"account": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query account failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": toAccountDTO(account)})
}

// Transactions returns a page of the customer's ledger at a place, newest
// first.
func (h *RewardsFrontHandler) Transactions(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	placeID, ok := placeIDParam(c)
	if !ok {
		return
	}

	account, errGet := h.manager.GetAccount(c.Request.Context(), userID, placeID)
	if errGet != nil {
		if errors.Is(errGet, rewards.ErrAccountNotFound) {
			c.JSON(http.StatusOK, gin.H{"transactions": []entryDTO{}, "total": 0})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query account failed"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	entries, total, errList := h.manager.ListEntries(c.Request.Context(), account.ID, page, pageSize)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query transactions failed"})
		return
	}

	out := make([]entryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryDTO{
			ID:                 entry.ID,
			BookingID:          entry.BookingID,
			Type:               entry.Type,
			PointsChange:       entry.PointsChange,
			PointsBalanceAfter: entry.PointsBalanceAfter,
			Description:        entry.Description,
			CreatedAt:          entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out, "total": total})
}

// redeemRequest defines the request body for redemption.
type redeemRequest struct {
	PlaceID     uint64  `json:"place_id"`
	Points      int64   `json:"points"`
	BookingID   *uint64 `json:"booking_id"`
	Description string  `json:"description"`
}

// Redeem converts points into a monetary discount.
func (h *RewardsFrontHandler) Redeem(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body redeemRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PlaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "place_id is required"})
		return
	}

	result, errRedeem := h.redemption.Redeem(c.Request.Context(), userID, body.PlaceID, body.Points, body.BookingID, body.Description)
	if errRedeem != nil {
		switch {
		case errors.Is(errRedeem, rewards.ErrInvalidAmount),
			errors.Is(errRedeem, rewards.ErrBelowMinimumRedemption):
			c.JSON(http.StatusBadRequest, gin.H{"error": errRedeem.Error()})
		case errors.Is(errRedeem, rewards.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient points balance"})
		case errors.Is(errRedeem, rewards.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no reward account at this place"})
		case errors.Is(errRedeem, rewards.ErrRedemptionUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": "redemption is not available at this place"})
		case errors.Is(errRedeem, rewards.ErrTransient):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, retry later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// optInRequest defines the request body for opting in.
type optInRequest struct {
	PlaceID uint64 `json:"place_id"`
}

// OptIn enrolls the customer in the rewards program at a place.
func (h *RewardsFrontHandler) OptIn(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body optInRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.PlaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "place_id is required"})
		return
	}

	account, errOptIn := h.manager.OptIn(c.Request.Context(), userID, body.PlaceID)
	if errOptIn != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "opt-in failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": toAccountDTO(account)})
}

// optOutRequest defines the request body for opting out.
type optOutRequest struct {
	PlaceID uint64 `json:"place_id"`
	Forfeit bool   `json:"forfeit"`
}

// OptOut removes the customer's account at a place. A non-zero balance is
// rejected unless forfeit is set.
func (h *RewardsFrontHandler) OptOut(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body optOutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.PlaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "place_id is required"})
		return
	}

	errOptOut := h.manager.OptOut(c.Request.Context(), userID, body.PlaceID, body.Forfeit)
	if errOptOut != nil {
		switch {
		case errors.Is(errOptOut, rewards.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no reward account at this place"})
		case errors.Is(errOptOut, rewards.ErrNonZeroBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "balance must be zero, or set forfeit"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "opt-out failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
