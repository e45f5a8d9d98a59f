package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

// RequireSession 要求已登录，且请求携带的 Bearer token 与会话用户一致。
// EventSource 无法设置请求头，因此也接受 token 查询参数。
func RequireSession(session *store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
				c.Abort()
				return
			}
			token = strings.TrimSpace(parts[1])
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}

		user := session.User()
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": store.ErrNotAuthenticated.Error()})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(user.Token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
