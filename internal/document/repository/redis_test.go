package repository

import (
	"context"
	"errors"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisRepo, *mr.Miniredis) {
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client, "test:"), m
}

func TestRedisRepo(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		r, _ := newRedisRepo(t)
		return r
	})
}

func TestRedisRepo_KeyLayout(t *testing.T) {
	r, m := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, sampleDoc("a", []string{"t1"}, "super-1")))

	require.True(t, m.Exists("test:doc:a"))
	got, err := m.Get("test:uuid:uuid-a")
	require.NoError(t, err)
	require.Equal(t, "a", got)

	members, err := m.SMembers("test:alias:super-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, members)
	members, err = m.SMembers("test:ref:t1")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, members)
}

func TestRedisRepo_MalformedRecord(t *testing.T) {
	r, m := newRedisRepo(t)
	require.NoError(t, m.Set("test:doc:bad", `{"meadowlarkId":"bad"}`))

	_, err := r.GetByKey(context.Background(), "bad")
	var de *document.DeserializationError
	require.True(t, errors.As(err, &de))
}

func TestRedisRepo_StaleIndexEntrySkipped(t *testing.T) {
	r, m := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, sampleDoc("a", []string{"t1"})))
	_, err := m.SAdd("test:ref:t1", "ghost")
	require.NoError(t, err)

	found, err := r.ScanReferencing(ctx, "t1", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "a", found[0].MeadowlarkID)
}

func TestRedisRepo_DefaultPrefix(t *testing.T) {
	r := NewRedisRepository(nil, "")
	require.Equal(t, "meadowlark:doc:x", r.docKey("x"))
}
