package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/http/api/admin/handlers"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/rewards"
	"github.com/placebook/placebook/internal/security"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the admin login route and the authenticated
// management routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, manager *rewards.AccountManager, store *rewards.SettingsStore) {
	if r == nil || db == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAdminAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	settingsHandler := handlers.NewRewardSettingsHandler(db, store)
	authed.GET("/reward-settings", settingsHandler.Get)
	authed.PUT("/reward-settings", settingsHandler.Upsert)

	rewardsHandler := handlers.NewRewardsAdminHandler(db, manager)
	authed.GET("/rewards/accounts", rewardsHandler.Accounts)
	authed.GET("/rewards/accounts/:id/transactions", rewardsHandler.Transactions)
	authed.POST("/rewards/adjust", rewardsHandler.Adjust)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if authHeader == "" || token == authHeader || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
