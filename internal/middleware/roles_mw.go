package middleware

import (
	"net/http"

	"taskboard/internal/model"

	"github.com/gin-gonic/gin"
)

// RequireAuthority allows the request through when the authenticated role
// grants the authority. JWTAuthMiddleware must run first.
func RequireAuthority(authority string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get(AuthRoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Role not found in token, ensure JWT middleware runs first"})
			return
		}

		role, ok := roleVal.(model.Role)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid role type in token"})
			return
		}

		if !role.HasAuthority(authority) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
			return
		}

		c.Next()
	}
}

// AdminMiddleware admits ADMIN accounts only
func AdminMiddleware() gin.HandlerFunc {
	return RequireAuthority(model.AuthorityAdmin)
}

// UserMiddleware admits any role carrying ROLE_USER, which includes ADMIN
func UserMiddleware() gin.HandlerFunc {
	return RequireAuthority(model.AuthorityUser)
}
