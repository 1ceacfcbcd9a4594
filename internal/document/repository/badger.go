package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/index"
)

// Key layout for the embedded store. Index entries have empty values; the
// primary key is the suffix after the last separator.
const (
	badgerDocPrefix   = "d/"
	badgerUUIDPrefix  = "u/"
	badgerAliasPrefix = "a/"
	badgerRefPrefix   = "r/"
)

// BadgerRepo implements Store on an embedded badger database. Every write is
// a single serializable transaction, so Insert is a true insert-if-absent.
type BadgerRepo struct {
	db *badger.DB
}

var (
	_ Store        = (*BadgerRepo)(nil)
	_ AliasChecker = (*BadgerRepo)(nil)
)

func NewBadgerRepo(db *badger.DB) *BadgerRepo {
	return &BadgerRepo{db: db}
}

func badgerDocKey(id string) []byte    { return []byte(badgerDocPrefix + id) }
func badgerUUIDKey(uuid string) []byte { return []byte(badgerUUIDPrefix + uuid) }

func badgerIndexPrefix(kind, key string) []byte {
	return []byte(kind + key + "/")
}

func badgerIndexKey(kind, key, pk string) []byte {
	return []byte(kind + key + "/" + pk)
}

func (b *BadgerRepo) GetByKey(ctx context.Context, meadowlarkID string) (*document.Document, error) {
	var d *document.Document
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		d, err = readDoc(txn, meadowlarkID)
		return err
	})
	return d, err
}

func (b *BadgerRepo) GetByDocumentUUID(ctx context.Context, documentUUID string) (*document.Document, error) {
	var d *document.Document
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerUUIDKey(documentUUID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		d, err = readDoc(txn, string(id))
		return err
	})
	return d, err
}

func (b *BadgerRepo) QueryByAlias(ctx context.Context, aliasID string, limit int) ([]*document.Document, error) {
	return b.indexedDocuments(badgerAliasPrefix, aliasID, limit)
}

func (b *BadgerRepo) ScanReferencing(ctx context.Context, targetID string, limit int) ([]*document.Document, error) {
	return b.indexedDocuments(badgerRefPrefix, targetID, limit)
}

func (b *BadgerRepo) Put(ctx context.Context, d *document.Document) error {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err = b.write(d, false)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("put document %s: %w", d.MeadowlarkID, err)
}

func (b *BadgerRepo) Insert(ctx context.Context, d *document.Document) error {
	err := b.write(d, true)
	if errors.Is(err, badger.ErrConflict) {
		return ErrAlreadyExists
	}
	return err
}

func (b *BadgerRepo) Delete(ctx context.Context, meadowlarkID string) error {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			prev, err := readDoc(txn, meadowlarkID)
			if err != nil {
				return err
			}
			keys := [][]byte{badgerDocKey(meadowlarkID), badgerUUIDKey(prev.DocumentUUID)}
			for _, a := range prev.AliasIDs {
				keys = append(keys, badgerIndexKey(badgerAliasPrefix, a, meadowlarkID))
			}
			for _, ref := range prev.OutboundRefs {
				keys = append(keys, badgerIndexKey(badgerRefPrefix, ref, meadowlarkID))
			}
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("delete document %s: %w", meadowlarkID, err)
}

// ExistingAliases answers every probe inside one read transaction.
func (b *BadgerRepo) ExistingAliases(ctx context.Context, aliasIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(aliasIDs))
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for _, id := range aliasIDs {
			prefix := badgerIndexPrefix(badgerAliasPrefix, id)
			it.Seek(prefix)
			if it.ValidForPrefix(prefix) {
				found[id] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check aliases: %w", err)
	}
	return found, nil
}

func (b *BadgerRepo) write(d *document.Document, insertOnly bool) error {
	raw, err := document.Encode(d)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		prev, err := readDoc(txn, d.MeadowlarkID)
		switch {
		case errors.Is(err, ErrNotFound):
			prev = nil
		case err != nil:
			return err
		case insertOnly:
			return ErrAlreadyExists
		}

		if prev != nil {
			if prev.DocumentUUID != d.DocumentUUID {
				if err := txn.Delete(badgerUUIDKey(prev.DocumentUUID)); err != nil {
					return err
				}
			}
			staleAliases, _ := index.Diff(prev.AliasIDs, d.AliasIDs)
			for _, a := range staleAliases {
				if err := txn.Delete(badgerIndexKey(badgerAliasPrefix, a, d.MeadowlarkID)); err != nil {
					return err
				}
			}
			staleRefs, _ := index.Diff(prev.OutboundRefs, d.OutboundRefs)
			for _, ref := range staleRefs {
				if err := txn.Delete(badgerIndexKey(badgerRefPrefix, ref, d.MeadowlarkID)); err != nil {
					return err
				}
			}
		}

		if err := txn.Set(badgerDocKey(d.MeadowlarkID), raw); err != nil {
			return err
		}
		if err := txn.Set(badgerUUIDKey(d.DocumentUUID), []byte(d.MeadowlarkID)); err != nil {
			return err
		}
		for _, a := range d.AliasIDs {
			if err := txn.Set(badgerIndexKey(badgerAliasPrefix, a, d.MeadowlarkID), []byte{}); err != nil {
				return err
			}
		}
		for _, ref := range d.OutboundRefs {
			if err := txn.Set(badgerIndexKey(badgerRefPrefix, ref, d.MeadowlarkID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerRepo) indexedDocuments(kind, key string, limit int) ([]*document.Document, error) {
	out := []*document.Document{}
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := badgerIndexPrefix(kind, key)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			ids = append(ids, string(it.Item().KeyCopy(nil)[len(prefix):]))
		}
		for _, id := range ids {
			d, err := readDoc(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

func readDoc(txn *badger.Txn, meadowlarkID string) (*document.Document, error) {
	item, err := txn.Get(badgerDocKey(meadowlarkID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return document.Decode(meadowlarkID, raw)
}
