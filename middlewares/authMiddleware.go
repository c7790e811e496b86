package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/stitchfocus/garments_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and populates the request
// context with the caller's business and user identity. Requests without a
// token pass through; handlers that need tenant scope reject them when the
// business id is absent.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetBusinessIdInContext(ctx, claim.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, claim.UserId)
		ctx = utils.SetUserNameInContext(ctx, claim.Name)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
