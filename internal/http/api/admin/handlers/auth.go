package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/security"
	"gorm.io/gorm"
)

// AdminAuthHandler handles administrator login.
type AdminAuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAdminAuthHandler constructs an AdminAuthHandler.
func NewAdminAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AdminAuthHandler {
	return &AdminAuthHandler{db: db, jwtCfg: jwtCfg}
}

// adminLoginRequest defines the request body for admin login.
type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies admin credentials and returns a signed token.
func (h *AdminAuthHandler) Login(c *gin.Context) {
	var body adminLoginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", strings.TrimSpace(body.Username)).
		First(&admin).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if !security.CheckPassword(admin.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}

	token, errToken := security.GenerateAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, h.jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": admin.ID, "username": admin.Username, "token": token})
}
