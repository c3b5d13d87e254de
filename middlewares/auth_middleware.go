package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/waitercall/utils"
)

// AuthMiddleware validates the bearer token and puts waiter identity into the
// request context. Token issuance lives elsewhere; only validation happens
// here.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("authorization header missing"))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := utils.ValidateToken(tokenString)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("waiter_id", claims.WaiterID)
		c.Set("restaurant_id", claims.RestaurantID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// WebSocketAuthMiddleware validates the token passed as a query parameter,
// since browsers cannot set headers on websocket upgrades.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set("waiter_id", claims.WaiterID)
		c.Set("restaurant_id", claims.RestaurantID)
		c.Set("role", claims.Role)
		c.Next()
	}
}
