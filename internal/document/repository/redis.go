package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/index"
	"github.com/redis/go-redis/v9"
)

// RedisRepo implements Store on Redis. Layout, under a configurable prefix:
//
//	doc:<meadowlarkId>   JSON document
//	uuid:<documentUuid>  meadowlarkId
//	alias:<aliasId>      SET of meadowlarkIds
//	ref:<targetId>       SET of meadowlarkIds
//
// Writes run in WATCH/MULTI transactions on the document key so the document
// and its index entries change together.
type RedisRepo struct {
	client *redis.Client
	prefix string
}

var (
	_ Store        = (*RedisRepo)(nil)
	_ AliasChecker = (*RedisRepo)(nil)
)

// NewRedisRepository creates a Redis-backed document store. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepo {
	if prefix == "" {
		prefix = "meadowlark:"
	}
	return &RedisRepo{client: client, prefix: prefix}
}

func (r *RedisRepo) docKey(id string) string      { return r.prefix + "doc:" + id }
func (r *RedisRepo) uuidKey(uuid string) string   { return r.prefix + "uuid:" + uuid }
func (r *RedisRepo) aliasKey(alias string) string { return r.prefix + "alias:" + alias }
func (r *RedisRepo) refKey(target string) string  { return r.prefix + "ref:" + target }

func (r *RedisRepo) GetByKey(ctx context.Context, meadowlarkID string) (*document.Document, error) {
	b, err := r.client.Get(ctx, r.docKey(meadowlarkID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return document.Decode(meadowlarkID, b)
}

func (r *RedisRepo) GetByDocumentUUID(ctx context.Context, documentUUID string) (*document.Document, error) {
	id, err := r.client.Get(ctx, r.uuidKey(documentUUID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.GetByKey(ctx, id)
}

func (r *RedisRepo) QueryByAlias(ctx context.Context, aliasID string, limit int) ([]*document.Document, error) {
	return r.membersAsDocuments(ctx, r.aliasKey(aliasID), limit)
}

func (r *RedisRepo) ScanReferencing(ctx context.Context, targetID string, limit int) ([]*document.Document, error) {
	return r.membersAsDocuments(ctx, r.refKey(targetID), limit)
}

func (r *RedisRepo) Put(ctx context.Context, d *document.Document) error {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err = r.write(ctx, d, false)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("put document %s: %w", d.MeadowlarkID, err)
}

func (r *RedisRepo) Insert(ctx context.Context, d *document.Document) error {
	err := r.write(ctx, d, true)
	if errors.Is(err, redis.TxFailedErr) {
		// another writer touched the key between WATCH and EXEC
		return ErrAlreadyExists
	}
	return err
}

func (r *RedisRepo) Delete(ctx context.Context, meadowlarkID string) error {
	key := r.docKey(meadowlarkID)
	txf := func(tx *redis.Tx) error {
		prev, err := r.load(ctx, tx, meadowlarkID)
		if err != nil {
			return err
		}
		if prev == nil {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, r.uuidKey(prev.DocumentUUID))
			for _, a := range prev.AliasIDs {
				pipe.SRem(ctx, r.aliasKey(a), meadowlarkID)
			}
			for _, ref := range prev.OutboundRefs {
				pipe.SRem(ctx, r.refKey(ref), meadowlarkID)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("delete document %s: %w", meadowlarkID, err)
}

func (r *RedisRepo) ExistingAliases(ctx context.Context, aliasIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(aliasIDs))
	if len(aliasIDs) == 0 {
		return found, nil
	}
	cmds := make([]*redis.IntCmd, len(aliasIDs))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range aliasIDs {
			cmds[i] = pipe.Exists(ctx, r.aliasKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check aliases: %w", err)
	}
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			found[aliasIDs[i]] = true
		}
	}
	return found, nil
}

func (r *RedisRepo) write(ctx context.Context, d *document.Document, insertOnly bool) error {
	raw, err := document.Encode(d)
	if err != nil {
		return err
	}
	key := r.docKey(d.MeadowlarkID)
	txf := func(tx *redis.Tx) error {
		prev, err := r.load(ctx, tx, d.MeadowlarkID)
		if err != nil {
			return err
		}
		if prev != nil && insertOnly {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.Set(ctx, r.uuidKey(d.DocumentUUID), d.MeadowlarkID, 0)
			if prev != nil {
				if prev.DocumentUUID != d.DocumentUUID {
					pipe.Del(ctx, r.uuidKey(prev.DocumentUUID))
				}
				staleAliases, _ := index.Diff(prev.AliasIDs, d.AliasIDs)
				for _, a := range staleAliases {
					pipe.SRem(ctx, r.aliasKey(a), d.MeadowlarkID)
				}
				staleRefs, _ := index.Diff(prev.OutboundRefs, d.OutboundRefs)
				for _, ref := range staleRefs {
					pipe.SRem(ctx, r.refKey(ref), d.MeadowlarkID)
				}
			}
			for _, a := range d.AliasIDs {
				pipe.SAdd(ctx, r.aliasKey(a), d.MeadowlarkID)
			}
			for _, ref := range d.OutboundRefs {
				pipe.SAdd(ctx, r.refKey(ref), d.MeadowlarkID)
			}
			return nil
		})
		return err
	}
	return r.client.Watch(ctx, txf, key)
}

// load returns nil, nil when the document is absent.
func (r *RedisRepo) load(ctx context.Context, tx *redis.Tx, meadowlarkID string) (*document.Document, error) {
	b, err := tx.Get(ctx, r.docKey(meadowlarkID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return document.Decode(meadowlarkID, b)
}

func (r *RedisRepo) membersAsDocuments(ctx context.Context, setKey string, limit int) ([]*document.Document, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := []*document.Document{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry outlived its document
			continue
		}
		d, err := document.Decode(ids[i], []byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
