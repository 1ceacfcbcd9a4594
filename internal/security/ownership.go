// Package security decides whether a caller may act on an existing document.
package security

import (
	"context"
	"errors"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/repository"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/metrics"
)

type Result string

const (
	NotApplicable  Result = "NOT_APPLICABLE"
	AccessApproved Result = "ACCESS_APPROVED"
	AccessDenied   Result = "ACCESS_DENIED"
	UnknownFailure Result = "UNKNOWN_FAILURE"
)

// DocumentLookup is the read access the gate needs. repository.Store satisfies it.
type DocumentLookup interface {
	GetByKey(ctx context.Context, meadowlarkID string) (*document.Document, error)
	GetByDocumentUUID(ctx context.Context, documentUUID string) (*document.Document, error)
}

// Request is what the gate knows about an incoming call.
type Request struct {
	Action       document.Action
	ResourceInfo document.ResourceInfo
	// DocumentUUID comes from the request path and may be empty.
	DocumentUUID string
	// DocumentInfo is the parsed body of an upsert, used when there is no path uuid.
	DocumentInfo *document.DocumentInfo
	Security     document.Security
	TraceID      string
}

// CheckOwnership applies the ownership rules in order and returns the first
// that decides the request.
func CheckOwnership(ctx context.Context, req Request, lookup DocumentLookup) Result {
	res := checkOwnership(ctx, req, lookup)
	metrics.OwnershipResults.WithLabelValues(string(req.Action), string(res)).Inc()
	return res
}

func checkOwnership(ctx context.Context, req Request, lookup DocumentLookup) Result {
	if req.ResourceInfo.IsDescriptor && (req.Action == document.ActionGetByID || req.Action == document.ActionQuery) {
		return NotApplicable
	}
	if req.Security.AuthorizationStrategy != document.StrategyOwnershipBased {
		return NotApplicable
	}

	var (
		existing *document.Document
		err      error
	)
	switch {
	case req.DocumentUUID != "":
		existing, err = lookup.GetByDocumentUUID(ctx, req.DocumentUUID)
	case req.Action == document.ActionUpsert && req.DocumentInfo != nil:
		id := document.MeadowlarkIDForDocumentIdentity(req.ResourceInfo, req.DocumentInfo.DocumentIdentity)
		existing, err = lookup.GetByKey(ctx, id)
	default:
		return NotApplicable
	}

	if errors.Is(err, repository.ErrNotFound) {
		return NotApplicable
	}
	if err != nil {
		logger.Errort(req.TraceID, "ownership lookup for %s failed: %v", req.Action, err)
		return UnknownFailure
	}
	if existing.CreatedBy == req.Security.ClientID {
		return AccessApproved
	}
	logger.Debugt(req.TraceID, "client %s denied %s on document %s owned by another client", req.Security.ClientID, req.Action, existing.DocumentUUID)
	return AccessDenied
}
