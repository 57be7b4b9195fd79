package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks learner-specific responses as uncacheable by browsers and
// shared proxies. Progress documents change on every heartbeat.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "private, no-store")
		c.Next()
	}
}
