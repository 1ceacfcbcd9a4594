package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/security"
)

// OwnershipMiddleware runs the ownership gate before a mutation or read.
// resolve builds the gate request from the gin context; approved and
// not-applicable requests continue.
func OwnershipMiddleware(lookup security.DocumentLookup, resolve func(c *gin.Context) security.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch security.CheckOwnership(c.Request.Context(), resolve(c), lookup) {
		case security.AccessDenied:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
		case security.UnknownFailure:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ownership check failed"})
		default:
			c.Next()
		}
	}
}
