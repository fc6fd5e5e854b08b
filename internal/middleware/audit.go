package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/service"
)

// AuditContext copies the caller's address and user agent onto the request
// context so the gateway can stamp them on audit rows.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithAuditMeta(c.Request.Context(), service.AuditMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
