package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/auth"
)

// AuthMiddleware validates the cookie-borne session token (with an
// Authorization header fallback) and stores the identity on the
// request context.
func AuthMiddleware(tokens *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if cookie, err := c.Cookie("token"); err == nil {
			token = cookie
		} else if header := c.GetHeader("Authorization"); header != "" {
			token = auth.StripBearer(header)
		}

		identity, err := tokens.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", identity.UserID)
		c.Set("displayName", identity.DisplayName)
		c.Next()
	}
}
