package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS allows browser clients to send and read the session headers.
func CORS() gin.HandlerFunc {
	allowHeaders := strings.Join([]string{"Origin", "Content-Type", "Accept", "Authorization", HeaderAccessToken, HeaderRefreshToken, HeaderUserID, HeaderRequestID}, ", ")
	exposeHeaders := strings.Join([]string{"Content-Length", HeaderAccessToken, HeaderRefreshToken, HeaderRequestID}, ", ")
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
