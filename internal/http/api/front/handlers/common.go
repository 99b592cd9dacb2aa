package handlers

import "github.com/gin-gonic/gin"

// getUserID returns the authenticated customer's ID stored by the route
// middleware, or zero when the request carries none.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get("userID")
	if !exists {
		return 0
	}
	id, ok := val.(uint64)
	if !ok {
		return 0
	}
	return id
}
