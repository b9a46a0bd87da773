package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through when the caller holds any of roles.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok || p.Role == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			abortJSON(c, http.StatusForbidden, "forbidden", "Your role cannot perform this action")
			return
		}
		c.Next()
	}
}
