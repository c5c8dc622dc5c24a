// README: Bearer-token auth; resolves the calling user from the X-User-ID header.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hitch/internal/types"
)

const callerUIDKey = "caller_uid"

// Auth guards the API with a shared bearer token and binds the caller's user
// ID for downstream handlers. An empty token disables the bearer check for
// local development; the user header is always required.
func Auth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" {
			header := c.GetHeader("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			presented := strings.TrimPrefix(header, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}

		uid := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if uid == "" || !validUserID(uid) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid user id"})
			return
		}
		c.Set(callerUIDKey, uid)
		c.Next()
	}
}

// CallerUID returns the authenticated user's ID, or "" outside Auth.
func CallerUID(c *gin.Context) types.ID {
	uid, _ := c.Get(callerUIDKey)
	s, _ := uid.(string)
	return types.ID(s)
}

// validUserID ensures IDs are alphanumeric and at most 64 chars.
func validUserID(v string) bool {
	if len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}
