package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const keyToken = "sessionToken"

// SessionToken 从 Authorization: Bearer 或会话 cookie 取令牌，只提取不校验；
// 身份解析在 service 里做
func SessionToken(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
			tok = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
		}
		if tok == "" && cookieName != "" {
			if v, err := c.Cookie(cookieName); err == nil {
				tok = v
			}
		}
		if tok != "" {
			c.Set(keyToken, tok)
		}
		c.Next()
	}
}

func Token(c *gin.Context) string { return c.GetString(keyToken) }
