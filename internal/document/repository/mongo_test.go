package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoFilters(t *testing.T) {
	require.Equal(t, bson.D{{Key: "_id", Value: "m1"}}, byKeyFilter("m1"))
	require.Equal(t, bson.D{{Key: "documentUuid", Value: "u1"}}, byUUIDFilter("u1"))
	require.Equal(t, bson.D{{Key: "aliasIds", Value: "a1"}}, aliasFilter("a1"))
	require.Equal(t, bson.D{{Key: "outboundRefs", Value: "t1"}}, referencingFilter("t1"))
	require.Equal(t,
		bson.D{{Key: "aliasIds", Value: bson.D{{Key: "$in", Value: []string{"a", "b"}}}}},
		aliasesInFilter([]string{"a", "b"}))
}

func TestMongoLimitedFind(t *testing.T) {
	opts := limitedFind(5)
	require.NotNil(t, opts.Limit)
	require.EqualValues(t, 5, *opts.Limit)

	require.Nil(t, limitedFind(0).Limit)
}

func TestMongoIndexes(t *testing.T) {
	idx := documentIndexes()
	require.Len(t, idx, 3)
	require.True(t, *idx[0].Options.Unique)
}

func TestMongoWriteLockFailsLoudly(t *testing.T) {
	err := (&MongoRepo{}).WriteLockReferencedDocuments(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrNotImplemented)
}
