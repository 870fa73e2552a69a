// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

const (
	ctxIdentityID = "identity_id"
	ctxAccountID  = "account_id"
	ctxRoles      = "roles"
)

// GetAccountID returns the account the caller's token is scoped to.
func GetAccountID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxAccountID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func GetIdentityID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxIdentityID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}
	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}
	return rolesList
}

// HasRole checks if the caller has the role
func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}
