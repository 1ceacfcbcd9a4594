package tokens

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Revocations reads the Redis list of revoked access tokens that the token
// issuer maintains. A nil client disables it and nothing is ever revoked.
type Revocations struct {
	client *redis.Client
	prefix string
}

func NewRevocations(client *redis.Client, prefix string) *Revocations {
	if prefix == "" {
		prefix = "meadowlark:"
	}
	return &Revocations{client: client, prefix: prefix}
}

func (r *Revocations) key(token string) string { return r.prefix + "revoked:access:" + token }

func (r *Revocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	if r == nil || r.client == nil {
		return false, nil
	}
	exists, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
