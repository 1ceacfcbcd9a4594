package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
)

func newBadgerRepo(t *testing.T) (*BadgerRepo, *badger.DB) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerRepo(db), db
}

func TestBadgerRepo(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		r, _ := newBadgerRepo(t)
		return r
	})
}

func TestBadgerRepo_AliasPrefixDoesNotOverlap(t *testing.T) {
	r, _ := newBadgerRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, sampleDoc("a", nil, "XY")))

	found, err := r.QueryByAlias(ctx, "X", 5)
	require.NoError(t, err)
	require.Empty(t, found)

	exists, err := r.ExistingAliases(ctx, []string{"X", "XY"})
	require.NoError(t, err)
	require.False(t, exists["X"])
	require.True(t, exists["XY"])
}

func TestBadgerRepo_MalformedRecord(t *testing.T) {
	r, db := newBadgerRepo(t)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerDocKey("bad"), []byte("not json"))
	}))

	_, err := r.GetByKey(context.Background(), "bad")
	var de *document.DeserializationError
	require.True(t, errors.As(err, &de))
}
