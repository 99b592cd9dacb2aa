package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/http/api/front/handlers"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/rewards"
	"github.com/placebook/placebook/internal/security"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers public and authenticated customer routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, manager *rewards.AccountManager, redemption *rewards.RedemptionEngine) {
	if r == nil || db == nil {
		return
	}

	frontGroup := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	frontGroup.POST("/register", authHandler.Register)
	frontGroup.POST("/login", authHandler.Login)

	authed := frontGroup.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	rewardsHandler := handlers.NewRewardsFrontHandler(manager, redemption)
	authed.GET("/rewards/account", rewardsHandler.Account)
	authed.GET("/rewards/transactions", rewardsHandler.Transactions)
	authed.POST("/rewards/redeem", rewardsHandler.Redeem)
	authed.POST("/rewards/opt-in", rewardsHandler.OptIn)
	authed.POST("/rewards/opt-out", rewardsHandler.OptOut)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
