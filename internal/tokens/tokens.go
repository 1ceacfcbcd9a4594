package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/config"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/middleware"
)

// GenerateClientToken creates a signed JWT for an API client.
func GenerateClientToken(cfg config.JWTConfig, clientID string, roles []string) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"client_id": clientID,
		"roles":     roles,
		"iat":       now.Unix(),
		"exp":       now.Add(cfg.TokenTTL).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.Secret))
}

// claimsToken exposes parsed JWT claims through middleware.Token.
type claimsToken struct {
	claims jwt.MapClaims
}

func (t *claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HMACVerifier checks HS256 client tokens issued by GenerateClientToken.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewHMACVerifier(cfg config.JWTConfig) *HMACVerifier {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &HMACVerifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify client token: %w", err)
	}
	return &claimsToken{claims: claims}, nil
}
