package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentCollection is the collection name shared by every deployment.
const DocumentCollection = "documents"

// MongoRepo implements Store over a MongoDB collection. The meadowlarkId is
// the _id; aliasIds and outboundRefs are multikey indexes so alias and
// referencing lookups never scan the collection.
type MongoRepo struct {
	col *mongo.Collection
}

var (
	_ Store        = (*MongoRepo)(nil)
	_ AliasChecker = (*MongoRepo)(nil)
)

// NewMongoRepo ensures the secondary indexes exist and returns the repo.
func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	if _, err := col.Indexes().CreateMany(ctx, documentIndexes()); err != nil {
		return nil, fmt.Errorf("create document indexes: %w", err)
	}
	return &MongoRepo{col: col}, nil
}

func documentIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "documentUuid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "aliasIds", Value: 1}}},
		{Keys: bson.D{{Key: "outboundRefs", Value: 1}}},
	}
}

func byKeyFilter(meadowlarkID string) bson.D {
	return bson.D{{Key: "_id", Value: meadowlarkID}}
}

func byUUIDFilter(documentUUID string) bson.D {
	return bson.D{{Key: "documentUuid", Value: documentUUID}}
}

func aliasFilter(aliasID string) bson.D {
	return bson.D{{Key: "aliasIds", Value: aliasID}}
}

func referencingFilter(targetID string) bson.D {
	return bson.D{{Key: "outboundRefs", Value: targetID}}
}

func aliasesInFilter(aliasIDs []string) bson.D {
	return bson.D{{Key: "aliasIds", Value: bson.D{{Key: "$in", Value: aliasIDs}}}}
}

func limitedFind(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func (m *MongoRepo) GetByKey(ctx context.Context, meadowlarkID string) (*document.Document, error) {
	return m.findOne(ctx, byKeyFilter(meadowlarkID))
}

func (m *MongoRepo) GetByDocumentUUID(ctx context.Context, documentUUID string) (*document.Document, error) {
	return m.findOne(ctx, byUUIDFilter(documentUUID))
}

func (m *MongoRepo) QueryByAlias(ctx context.Context, aliasID string, limit int) ([]*document.Document, error) {
	return m.find(ctx, aliasFilter(aliasID), limitedFind(limit))
}

func (m *MongoRepo) ScanReferencing(ctx context.Context, targetID string, limit int) ([]*document.Document, error) {
	return m.find(ctx, referencingFilter(targetID), limitedFind(limit))
}

func (m *MongoRepo) Put(ctx context.Context, d *document.Document) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.col.ReplaceOne(ctx, byKeyFilter(d.MeadowlarkID), d, opts); err != nil {
		return fmt.Errorf("put document %s: %w", d.MeadowlarkID, err)
	}
	return nil
}

// Insert relies on the _id uniqueness constraint, which makes the existence
// check and the write a single atomic step.
func (m *MongoRepo) Insert(ctx context.Context, d *document.Document) error {
	if _, err := m.col.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert document %s: %w", d.MeadowlarkID, err)
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, meadowlarkID string) error {
	res, err := m.col.DeleteOne(ctx, byKeyFilter(meadowlarkID))
	if err != nil {
		return fmt.Errorf("delete document %s: %w", meadowlarkID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) ExistingAliases(ctx context.Context, aliasIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(aliasIDs))
	if len(aliasIDs) == 0 {
		return found, nil
	}
	opts := options.Find().SetProjection(bson.D{{Key: "aliasIds", Value: 1}})
	cur, err := m.col.Find(ctx, aliasesInFilter(aliasIDs), opts)
	if err != nil {
		return nil, fmt.Errorf("find aliases: %w", err)
	}
	defer cur.Close(ctx)

	wanted := make(map[string]struct{}, len(aliasIDs))
	for _, id := range aliasIDs {
		wanted[id] = struct{}{}
	}
	for cur.Next(ctx) {
		var rec struct {
			AliasIDs []string `bson:"aliasIds"`
		}
		if err := cur.Decode(&rec); err != nil {
			return nil, &document.DeserializationError{Reason: "alias projection", Err: err}
		}
		for _, a := range rec.AliasIDs {
			if _, ok := wanted[a]; ok {
				found[a] = true
			}
		}
	}
	return found, cur.Err()
}

// WriteLockReferencedDocuments is kept for callers written against the
// transactional Mongo layout. Per-document atomicity plus the conditional
// Insert replaces it here.
func (m *MongoRepo) WriteLockReferencedDocuments(ctx context.Context, meadowlarkIDs []string) error {
	return fmt.Errorf("write lock referenced documents: %w", ErrNotImplemented)
}

func (m *MongoRepo) findOne(ctx context.Context, filter bson.D) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]*document.Document, error) {
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, &document.DeserializationError{Reason: "malformed record", Err: err}
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}
