package repository

import (
	"context"
	"errors"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrAlreadyExists  = errors.New("document already exists")
	ErrNotImplemented = errors.New("not implemented")
)

// Store is the capability set the core needs from a backing store. Only
// single-document atomicity is assumed; a Put is not guaranteed to be visible
// to a later QueryByAlias or ScanReferencing on another connection.
type Store interface {
	// GetByKey returns ErrNotFound when no document has the meadowlarkId.
	GetByKey(ctx context.Context, meadowlarkID string) (*document.Document, error)
	// GetByDocumentUUID returns ErrNotFound when no document has the uuid.
	GetByDocumentUUID(ctx context.Context, documentUUID string) (*document.Document, error)
	// QueryByAlias returns documents whose aliasIds contain aliasID.
	QueryByAlias(ctx context.Context, aliasID string, limit int) ([]*document.Document, error)
	// ScanReferencing returns documents whose outboundRefs contain targetID.
	ScanReferencing(ctx context.Context, targetID string, limit int) ([]*document.Document, error)
	// Put replaces the document stored under its meadowlarkId, or creates it.
	Put(ctx context.Context, d *document.Document) error
	// Insert creates the document only if its meadowlarkId is absent,
	// otherwise it returns ErrAlreadyExists.
	Insert(ctx context.Context, d *document.Document) error
	// Delete returns ErrNotFound when nothing was removed.
	Delete(ctx context.Context, meadowlarkID string) error
}

// AliasChecker is implemented by stores that can answer "which of these
// alias ids are claimed" in one round trip.
type AliasChecker interface {
	ExistingAliases(ctx context.Context, aliasIDs []string) (map[string]bool, error)
}

// maxWriteAttempts bounds optimistic transaction retries for Put and Delete.
const maxWriteAttempts = 3
