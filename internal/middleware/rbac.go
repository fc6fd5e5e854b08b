package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type principalResolver interface {
	Resolve(ctx context.Context, principalID string) (*models.Principal, error)
}

// RequireCapability resolves the caller's role from the profile store and
// allows the request when the principal holds any of caps. Roles are never
// taken from the token.
func RequireCapability(resolver principalResolver, caps ...models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		principal, err := resolver.Resolve(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if len(caps) > 0 && !principal.Capabilities.Any(caps...) {
			response.Error(c, appErrors.WithDetails(appErrors.ErrForbidden, "", map[string]interface{}{"capability": string(caps[0])}))
			c.Abort()
			return
		}
		c.Next()
	}
}
