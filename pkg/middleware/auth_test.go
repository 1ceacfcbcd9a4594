package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier implements Verifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	switch raw {
	case "goodtoken", "black-token":
		return &fakeToken{data: map[string]interface{}{"client_id": "client-1", "roles": []interface{}{"vendor"}}}, nil
	case "hosttoken":
		return &fakeToken{data: map[string]interface{}{"client_id": "host-1", "roles": []interface{}{"host"}}}, nil
	case "anonymous":
		return &fakeToken{data: map[string]interface{}{"email": "x@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

type fakeRevocations map[string]bool

func (f fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	if token == "broken" {
		return false, errors.New("redis down")
	}
	return f[token], nil
}

func serveAuth(t *testing.T, header string, revoked RevocationChecker) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", AuthMiddleware(&fakeVerifier{}, revoked), func(c *gin.Context) {
		sec, ok := SecurityFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, sec)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serveAuth(t, "", nil).Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serveAuth(t, "BadHeader", nil).Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serveAuth(t, "Bearer forged", nil).Code)
}

func TestAuthMiddleware_TokenWithoutClientID(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serveAuth(t, "Bearer anonymous", nil).Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serveAuth(t, "Bearer goodtoken", nil)
	require.Equal(t, http.StatusOK, rw.Code)

	var got document.Security
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "client-1", got.ClientID)
	require.Equal(t, document.StrategyOwnershipBased, got.AuthorizationStrategy)
}

func TestAuthMiddleware_HostRoleHasFullAccess(t *testing.T) {
	rw := serveAuth(t, "Bearer hosttoken", nil)
	require.Equal(t, http.StatusOK, rw.Code)

	var got document.Security
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, document.StrategyFullAccess, got.AuthorizationStrategy)
}

func TestAuthMiddleware_RejectsRevokedToken(t *testing.T) {
	revoked := fakeRevocations{"black-token": true}
	require.Equal(t, http.StatusUnauthorized, serveAuth(t, "Bearer black-token", revoked).Code)
	require.Equal(t, http.StatusOK, serveAuth(t, "Bearer goodtoken", revoked).Code)
	require.Equal(t, http.StatusInternalServerError, serveAuth(t, "Bearer broken", revoked).Code)
}

func TestSecurityFromClaims(t *testing.T) {
	sec, err := SecurityFromClaims(map[string]interface{}{
		"azp":          "keycloak-client",
		"realm_access": map[string]interface{}{"roles": []interface{}{"offline_access", "admin"}},
	})
	require.NoError(t, err)
	require.Equal(t, "keycloak-client", sec.ClientID)
	require.Equal(t, document.StrategyFullAccess, sec.AuthorizationStrategy)

	sec, err = SecurityFromClaims(map[string]interface{}{"sub": "user-1"})
	require.NoError(t, err)
	require.Equal(t, document.StrategyOwnershipBased, sec.AuthorizationStrategy)

	_, err = SecurityFromClaims(map[string]interface{}{})
	require.Error(t, err)
}
