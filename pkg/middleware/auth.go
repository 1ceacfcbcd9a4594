package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey   = "claims"
	SecurityKey = "security"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationChecker reports tokens that were revoked before they expired.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
// and stores the caller as a document.Security under SecurityKey. revoked may be nil.
func AuthMiddleware(ver Verifier, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token revocation check failed"})
				return
			}
			if isRevoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		verified, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := verified.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		sec, err := SecurityFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(SecurityKey, sec)
		c.Next()
	}
}

// SecurityFromClaims maps token claims onto the caller identity. The client
// id comes from client_id, then azp, then sub. Roles come from roles or from
// a Keycloak realm_access block; host or admin grants full access.
func SecurityFromClaims(claims map[string]interface{}) (document.Security, error) {
	var clientID string
	for _, k := range []string{"client_id", "azp", "sub"} {
		if v, ok := claims[k].(string); ok && v != "" {
			clientID = v
			break
		}
	}
	if clientID == "" {
		return document.Security{}, errors.New("token carries no client id")
	}

	roles, _ := claims["roles"].([]interface{})
	if roles == nil {
		if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
			roles, _ = ra["roles"].([]interface{})
		}
	}
	strategy := document.StrategyOwnershipBased
	for _, r := range roles {
		if s, _ := r.(string); s == "host" || s == "admin" {
			strategy = document.StrategyFullAccess
			break
		}
	}
	return document.Security{ClientID: clientID, AuthorizationStrategy: strategy}, nil
}

// SecurityFrom returns the caller stored by AuthMiddleware.
func SecurityFrom(c *gin.Context) (document.Security, bool) {
	v, ok := c.Get(SecurityKey)
	if !ok {
		return document.Security{}, false
	}
	sec, ok := v.(document.Security)
	return sec, ok
}
