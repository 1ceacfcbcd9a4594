package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/repository"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/metrics"
)

// BlockingDocumentLimit caps every blocking-document report.
const BlockingDocumentLimit = 5

const defaultProbeConcurrency = 8

// Service runs document writes against a Store. It holds no per-request
// state; every check reads the store live.
type Service struct {
	store            repository.Store
	now              func() time.Time
	probeConcurrency int
}

type Option func(*Service)

// WithClock overrides the time source used for createdAt/lastModifiedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithProbeConcurrency bounds parallel reference probes on stores without a
// batch alias check.
func WithProbeConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.probeConcurrency = n
		}
	}
}

func New(store repository.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, probeConcurrency: defaultProbeConcurrency}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upsert inserts the document or replaces the one stored under the same
// meadowlarkId.
func (s *Service) Upsert(ctx context.Context, req document.UpsertRequest) document.UpsertResult {
	id := req.MeadowlarkID
	if id == "" {
		id = document.MeadowlarkIDForDocumentIdentity(req.ResourceInfo, req.DocumentInfo.DocumentIdentity)
	}
	res := s.upsert(ctx, id, req, false)
	metrics.DocumentOperations.WithLabelValues(string(document.ActionUpsert), string(res.Response)).Inc()
	return res
}

func (s *Service) upsert(ctx context.Context, id string, req document.UpsertRequest, lostInsert bool) document.UpsertResult {
	existing, err := s.store.GetByKey(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return s.upsertFailure(req.TraceID, "existence check", id, err)
	}
	isInsert := existing == nil

	// The ownership gate saw no document before the race was lost, so the
	// winner's owner is checked here before the write becomes an update.
	if lostInsert && existing != nil &&
		req.Security.AuthorizationStrategy == document.StrategyOwnershipBased &&
		existing.CreatedBy != req.Security.ClientID {
		logger.Warnt(req.TraceID, "insert of %s lost to documentUuid %s owned by another client", id, existing.DocumentUUID)
		return document.UpsertResult{
			Response:          document.InsertFailureConflict,
			FailureMessage:    "Insert failed: the document was created concurrently by another client",
			BlockingDocuments: []document.BlockingDocument{existing.Blocking()},
		}
	}

	if sc := req.DocumentInfo.SuperclassInfo; isInsert && sc != nil {
		claimed, err := s.store.QueryByAlias(ctx, document.SuperclassAliasID(*sc), 1)
		if err != nil {
			return s.upsertFailure(req.TraceID, "superclass check", id, err)
		}
		if len(claimed) > 0 && claimed[0].MeadowlarkID != id {
			other := claimed[0]
			logger.Warnt(req.TraceID, "insert of %s rejected: superclass identity already held by documentUuid %s (%s)", id, other.DocumentUUID, other.MeadowlarkID)
			return document.UpsertResult{
				Response:          document.InsertFailureConflict,
				FailureMessage:    fmt.Sprintf("Insert failed: the identity is in use by '%s' which is also a(n) '%s'", other.ResourceName, sc.ResourceName),
				BlockingDocuments: []document.BlockingDocument{other.Blocking()},
			}
		}
	}

	if req.ValidateDocumentReferencesExist {
		failures, blocking, err := s.checkReferences(ctx, id, req.DocumentInfo, req.TraceID)
		if err != nil {
			return s.upsertFailure(req.TraceID, "reference check", id, err)
		}
		if len(failures) > 0 {
			resp := document.UpdateFailureReference
			if isInsert {
				resp = document.InsertFailureReference
			}
			return document.UpsertResult{
				Response:          resp,
				FailureMessage:    "Reference validation failed",
				Failures:          failures,
				BlockingDocuments: blocking,
			}
		}
	}

	doc := s.buildDocument(id, req.ResourceInfo, req.DocumentInfo, req.EdfiDoc, req.ValidateDocumentReferencesExist, req.Security.ClientID)
	if !isInsert {
		preserve(doc, existing)
		if err := s.store.Put(ctx, doc); err != nil {
			return s.upsertFailure(req.TraceID, "commit", id, err)
		}
		logger.Debugt(req.TraceID, "updated document uuid %s", doc.DocumentUUID)
		return document.UpsertResult{Response: document.UpdateSuccess, DocumentUUID: doc.DocumentUUID}
	}

	doc.DocumentUUID = document.GenerateDocumentUUID()
	err = s.store.Insert(ctx, doc)
	if errors.Is(err, repository.ErrAlreadyExists) && !lostInsert {
		logger.Debugt(req.TraceID, "insert of %s lost to a concurrent writer, retrying as update", id)
		return s.upsert(ctx, id, req, true)
	}
	if err != nil {
		return s.upsertFailure(req.TraceID, "commit", id, err)
	}
	logger.Debugt(req.TraceID, "inserted document uuid %s", doc.DocumentUUID)
	return document.UpsertResult{Response: document.InsertSuccess, DocumentUUID: doc.DocumentUUID}
}

func (s *Service) upsertFailure(traceID, step, id string, err error) document.UpsertResult {
	logger.Errort(traceID, "upsert of %s failed during %s: %v", id, step, err)
	return document.UpsertResult{Response: document.UpsertUnknownFailure, FailureMessage: err.Error()}
}

// UpdateByID replaces the document addressed by documentUuid. The body must
// keep the stored identity.
func (s *Service) UpdateByID(ctx context.Context, req document.UpdateRequest) document.UpdateResult {
	res := s.updateByID(ctx, req)
	metrics.DocumentOperations.WithLabelValues(string(document.ActionUpdateByID), string(res.Response)).Inc()
	return res
}

func (s *Service) updateByID(ctx context.Context, req document.UpdateRequest) document.UpdateResult {
	existing, err := s.lookupUUID(ctx, req.DocumentUUID, req.ResourceInfo)
	if errors.Is(err, repository.ErrNotFound) {
		return document.UpdateResult{Response: document.UpdateFailureNotExists}
	}
	if err != nil {
		return s.updateFailure(req.TraceID, req.DocumentUUID, err)
	}

	id := document.MeadowlarkIDForDocumentIdentity(req.ResourceInfo, req.DocumentInfo.DocumentIdentity)
	if id != existing.MeadowlarkID {
		return document.UpdateResult{
			Response:       document.UpdateFailureImmutableIdentity,
			FailureMessage: "The identity of the resource does not match the identity in the updated document.",
		}
	}

	if req.ValidateDocumentReferencesExist {
		failures, blocking, err := s.checkReferences(ctx, id, req.DocumentInfo, req.TraceID)
		if err != nil {
			return s.updateFailure(req.TraceID, req.DocumentUUID, err)
		}
		if len(failures) > 0 {
			return document.UpdateResult{
				Response:          document.UpdateByIDFailureReference,
				FailureMessage:    "Reference validation failed",
				Failures:          failures,
				BlockingDocuments: blocking,
			}
		}
	}

	doc := s.buildDocument(id, req.ResourceInfo, req.DocumentInfo, req.EdfiDoc, req.ValidateDocumentReferencesExist, req.Security.ClientID)
	preserve(doc, existing)
	if err := s.store.Put(ctx, doc); err != nil {
		return s.updateFailure(req.TraceID, req.DocumentUUID, err)
	}
	return document.UpdateResult{Response: document.UpdateByIDSuccess}
}

func (s *Service) updateFailure(traceID, uuid string, err error) document.UpdateResult {
	logger.Errort(traceID, "update of documentUuid %s failed: %v", uuid, err)
	return document.UpdateResult{Response: document.UpdateUnknownFailure, FailureMessage: err.Error()}
}

func (s *Service) GetByID(ctx context.Context, req document.GetRequest) document.GetResult {
	d, err := s.lookupUUID(ctx, req.DocumentUUID, req.ResourceInfo)
	var res document.GetResult
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res = document.GetResult{Response: document.GetFailureNotExists}
	case err != nil:
		logger.Errort(req.TraceID, "get of documentUuid %s failed: %v", req.DocumentUUID, err)
		res = document.GetResult{Response: document.GetUnknownFailure}
	default:
		res = document.GetResult{Response: document.GetSuccess, Document: d}
	}
	metrics.DocumentOperations.WithLabelValues(string(document.ActionGetByID), string(res.Response)).Inc()
	return res
}

// DeleteByID removes the document addressed by documentUuid. When asked to,
// it refuses while other documents still reference any of its alias ids.
func (s *Service) DeleteByID(ctx context.Context, req document.DeleteRequest) document.DeleteResult {
	res := s.deleteByID(ctx, req)
	metrics.DocumentOperations.WithLabelValues(string(document.ActionDeleteByID), string(res.Response)).Inc()
	return res
}

func (s *Service) deleteByID(ctx context.Context, req document.DeleteRequest) document.DeleteResult {
	existing, err := s.lookupUUID(ctx, req.DocumentUUID, req.ResourceInfo)
	if errors.Is(err, repository.ErrNotFound) {
		return document.DeleteResult{Response: document.DeleteFailureNotExists}
	}
	if err != nil {
		return s.deleteFailure(req.TraceID, req.DocumentUUID, err)
	}

	if req.ValidateNoReferencesToDocument {
		blocking, err := s.referencingAny(ctx, existing)
		if err != nil {
			return s.deleteFailure(req.TraceID, req.DocumentUUID, err)
		}
		if len(blocking) > 0 {
			logger.Debugt(req.TraceID, "delete of documentUuid %s blocked by %d referencing documents", req.DocumentUUID, len(blocking))
			return document.DeleteResult{
				Response:          document.DeleteFailureReference,
				FailureMessage:    "Delete failed due to existing references to the document",
				BlockingDocuments: blocking,
			}
		}
	}

	err = s.store.Delete(ctx, existing.MeadowlarkID)
	if errors.Is(err, repository.ErrNotFound) {
		return document.DeleteResult{Response: document.DeleteFailureNotExists}
	}
	if err != nil {
		return s.deleteFailure(req.TraceID, req.DocumentUUID, err)
	}
	return document.DeleteResult{Response: document.DeleteSuccess}
}

func (s *Service) deleteFailure(traceID, uuid string, err error) document.DeleteResult {
	logger.Errort(traceID, "delete of documentUuid %s failed: %v", uuid, err)
	return document.DeleteResult{Response: document.DeleteUnknownFailure, FailureMessage: err.Error()}
}

// lookupUUID treats a uuid that belongs to another resource as absent.
func (s *Service) lookupUUID(ctx context.Context, uuid string, ri document.ResourceInfo) (*document.Document, error) {
	d, err := s.store.GetByDocumentUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if d.ProjectName != ri.ProjectName || d.ResourceName != ri.ResourceName {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (s *Service) buildDocument(id string, ri document.ResourceInfo, info document.DocumentInfo, edfiDoc map[string]any, validated bool, clientID string) *document.Document {
	now := s.now().UnixMilli()
	return &document.Document{
		MeadowlarkID:     id,
		ProjectName:      ri.ProjectName,
		ResourceName:     ri.ResourceName,
		ResourceVersion:  ri.ResourceVersion,
		IsDescriptor:     ri.IsDescriptor,
		DocumentIdentity: info.DocumentIdentity,
		EdfiDoc:          edfiDoc,
		OutboundRefs:     document.OutboundRefsFor(info),
		AliasIDs:         document.AliasIDsFor(id, info.SuperclassInfo),
		Validated:        validated,
		CreatedBy:        clientID,
		CreatedAt:        now,
		LastModifiedAt:   now,
	}
}

// preserve carries the fields an update must never change.
func preserve(doc, existing *document.Document) {
	doc.DocumentUUID = existing.DocumentUUID
	doc.CreatedBy = existing.CreatedBy
	doc.CreatedAt = existing.CreatedAt
}
