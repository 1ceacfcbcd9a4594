package repository

import (
	"context"
	"sync"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/index"
)

type memoryRecord struct {
	raw      []byte
	uuid     string
	aliasIDs []string
	refs     []string
}

// MemoryRepo is an in-memory Store used for unit tests and ephemeral runs.
// Documents are kept encoded so callers never share mutable state.
type MemoryRepo struct {
	mu      sync.RWMutex
	docs    map[string]*memoryRecord
	byUUID  map[string]string
	aliases *index.SecondaryIndex
	refs    *index.SecondaryIndex
}

var (
	_ Store        = (*MemoryRepo)(nil)
	_ AliasChecker = (*MemoryRepo)(nil)
)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:    make(map[string]*memoryRecord),
		byUUID:  make(map[string]string),
		aliases: index.New(),
		refs:    index.New(),
	}
}

func (m *MemoryRepo) GetByKey(ctx context.Context, meadowlarkID string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(meadowlarkID)
}

func (m *MemoryRepo) GetByDocumentUUID(ctx context.Context, documentUUID string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUUID[documentUUID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.get(id)
}

func (m *MemoryRepo) QueryByAlias(ctx context.Context, aliasID string, limit int) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAll(m.aliases.Lookup(aliasID, limit))
}

func (m *MemoryRepo) ScanReferencing(ctx context.Context, targetID string, limit int) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAll(m.refs.Lookup(targetID, limit))
}

func (m *MemoryRepo) Put(ctx context.Context, d *document.Document) error {
	return m.write(d, false)
}

func (m *MemoryRepo) Insert(ctx context.Context, d *document.Document) error {
	return m.write(d, true)
}

func (m *MemoryRepo) Delete(ctx context.Context, meadowlarkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.docs[meadowlarkID]
	if !ok {
		return ErrNotFound
	}
	m.aliases.Remove(meadowlarkID, rec.aliasIDs)
	m.refs.Remove(meadowlarkID, rec.refs)
	delete(m.byUUID, rec.uuid)
	delete(m.docs, meadowlarkID)
	return nil
}

func (m *MemoryRepo) ExistingAliases(ctx context.Context, aliasIDs []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(aliasIDs))
	for _, id := range aliasIDs {
		out[id] = m.aliases.Has(id)
	}
	return out, nil
}

func (m *MemoryRepo) write(d *document.Document, insertOnly bool) error {
	raw, err := document.Encode(d)
	if err != nil {
		return err
	}
	rec := &memoryRecord{
		raw:      raw,
		uuid:     d.DocumentUUID,
		aliasIDs: append([]string(nil), d.AliasIDs...),
		refs:     append([]string(nil), d.OutboundRefs...),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, exists := m.docs[d.MeadowlarkID]
	if exists && insertOnly {
		return ErrAlreadyExists
	}
	var prevAliases, prevRefs []string
	if exists {
		prevAliases, prevRefs = prev.aliasIDs, prev.refs
		delete(m.byUUID, prev.uuid)
	}
	m.docs[d.MeadowlarkID] = rec
	m.byUUID[rec.uuid] = d.MeadowlarkID
	m.aliases.Replace(d.MeadowlarkID, prevAliases, rec.aliasIDs)
	m.refs.Replace(d.MeadowlarkID, prevRefs, rec.refs)
	return nil
}

func (m *MemoryRepo) get(id string) (*document.Document, error) {
	rec, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return document.Decode(id, rec.raw)
}

func (m *MemoryRepo) getAll(ids []string) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		d, err := m.get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
