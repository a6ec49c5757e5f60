// Package rbac resolves static access tokens to roles and guards routes.
package rbac

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Default tokens used when the configuration leaves a role blank.
const (
	DefaultAdminToken     = "admin-token"
	DefaultClinicianToken = "clinician-token"
	DefaultObserverToken  = "observer-token"
)

const (
	contextRoleKey  = "role"
	contextTokenKey = "access_token"
)

// Resolver maps access tokens to roles. Unknown tokens resolve to observer.
type Resolver struct {
	tokens map[string]domain.Role
}

// NewResolver builds a resolver from the auth configuration
func NewResolver(config domain.AuthConfig) *Resolver {
	pick := func(token, def string) string {
		if token == "" {
			return def
		}
		return token
	}

	return &Resolver{tokens: map[string]domain.Role{
		pick(config.AdminToken, DefaultAdminToken):         domain.RoleAdmin,
		pick(config.ClinicianToken, DefaultClinicianToken): domain.RoleClinician,
		pick(config.ObserverToken, DefaultObserverToken):   domain.RoleObserver,
	}}
}

// Resolve returns the role of a token. A "Bearer " prefix is ignored.
func (r *Resolver) Resolve(token string) domain.Role {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if role, ok := r.tokens[token]; ok {
		return role
	}
	return domain.RoleObserver
}

// Allowed reports whether role is in the allow list
func Allowed(role domain.Role, roles ...domain.Role) bool {
	return role.In(roles...)
}

// Middleware resolves the Authorization header and stores the role.
// Browsers cannot set headers on websocket upgrades, so the access_token
// query parameter is accepted when the header is absent.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("access_token")
		}
		c.Set(contextRoleKey, resolver.Resolve(token))
		c.Set(contextTokenKey, strings.TrimSpace(token))
		c.Next()
	}
}

// Require aborts with 403 unless the resolved role is in roles
func Require(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := RoleFrom(c)
		if !Allowed(role, roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, domain.NewGuardrailError(
				domain.ErrAuthorization,
				"Insufficient role",
				string(role),
				c.GetString("correlation_id"),
			))
			return
		}
		c.Next()
	}
}

// RoleFrom returns the role stored by Middleware, or observer
func RoleFrom(c *gin.Context) domain.Role {
	if v, ok := c.Get(contextRoleKey); ok {
		if role, ok := v.(domain.Role); ok {
			return role
		}
	}
	return domain.RoleObserver
}

// TokenFrom returns the raw access token of the request
func TokenFrom(c *gin.Context) string {
	return c.GetString(contextTokenKey)
}

// CallerFrom builds the ledger caller. The role name is the user id.
func CallerFrom(c *gin.Context) domain.Caller {
	role := RoleFrom(c)
	return domain.Caller{UserID: string(role), Role: role}
}
