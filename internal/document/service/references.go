package service

import (
	"context"
	"fmt"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/repository"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

type pendingReference struct {
	id  string
	ref document.DocumentReference
}

// ValidateReferences returns one failure per distinct referenced id that no
// stored document answers to, document references first. A store error is
// returned as an error, never as a failure.
func (s *Service) ValidateReferences(ctx context.Context, documentRefs, descriptorRefs []document.DocumentReference, traceID string) ([]document.ReferenceFailure, error) {
	pending := distinctReferences(documentRefs, descriptorRefs)
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.id
	}

	found, err := s.existingAliases(ctx, ids)
	if err != nil {
		return nil, err
	}

	var failures []document.ReferenceFailure
	for _, p := range pending {
		if found[p.id] {
			continue
		}
		metrics.ReferenceFailures.WithLabelValues(referenceKind(p.ref)).Inc()
		logger.Debugt(traceID, "unresolved %s reference %s (%s)", referenceKind(p.ref), p.id, p.ref.ResourceName)
		failures = append(failures, document.ReferenceFailure{
			MeadowlarkID:     p.id,
			ProjectName:      p.ref.ProjectName,
			ResourceName:     p.ref.ResourceName,
			IsDescriptor:     p.ref.IsDescriptor,
			DocumentIdentity: p.ref.DocumentIdentity,
			Message:          fmt.Sprintf("Resource %s is missing identity %s", p.ref.ResourceName, document.CanonicalIdentity(p.ref.DocumentIdentity)),
		})
	}
	if len(failures) > 0 {
		logger.Debugt(traceID, "%d of %d references did not resolve", len(failures), len(pending))
	}
	return failures, nil
}

func referenceKind(ref document.DocumentReference) string {
	if ref.IsDescriptor {
		return "descriptor"
	}
	return "document"
}

// FindBlockingDocuments lists documents whose outboundRefs contain targetID.
// limit is clamped to BlockingDocumentLimit.
func (s *Service) FindBlockingDocuments(ctx context.Context, targetID string, limit int) ([]document.BlockingDocument, error) {
	if limit <= 0 || limit > BlockingDocumentLimit {
		limit = BlockingDocumentLimit
	}
	docs, err := s.store.ScanReferencing(ctx, targetID, limit)
	if err != nil {
		return nil, err
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]document.BlockingDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Blocking())
	}
	return out, nil
}

func (s *Service) checkReferences(ctx context.Context, id string, info document.DocumentInfo, traceID string) ([]document.ReferenceFailure, []document.BlockingDocument, error) {
	failures, err := s.ValidateReferences(ctx, info.DocumentReferences, info.DescriptorReferences, traceID)
	if err != nil || len(failures) == 0 {
		return nil, nil, err
	}
	blocking, err := s.FindBlockingDocuments(ctx, id, BlockingDocumentLimit)
	if err != nil {
		return nil, nil, err
	}
	return failures, blocking, nil
}

// referencingAny collects documents pointing at any alias of d, other than d.
func (s *Service) referencingAny(ctx context.Context, d *document.Document) ([]document.BlockingDocument, error) {
	seen := map[string]bool{d.MeadowlarkID: true}
	var out []document.BlockingDocument
	for _, alias := range d.AliasIDs {
		docs, err := s.store.ScanReferencing(ctx, alias, BlockingDocumentLimit+1)
		if err != nil {
			return nil, err
		}
		for _, ref := range docs {
			if seen[ref.MeadowlarkID] {
				continue
			}
			seen[ref.MeadowlarkID] = true
			out = append(out, ref.Blocking())
			if len(out) == BlockingDocumentLimit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *Service) existingAliases(ctx context.Context, ids []string) (map[string]bool, error) {
	if checker, ok := s.store.(repository.AliasChecker); ok {
		return checker.ExistingAliases(ctx, ids)
	}

	hits := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.probeConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			docs, err := s.store.QueryByAlias(gctx, id, 1)
			if err != nil {
				return fmt.Errorf("probe reference %s: %w", id, err)
			}
			hits[i] = len(docs) > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(ids))
	for i, id := range ids {
		found[id] = hits[i]
	}
	return found, nil
}

func distinctReferences(documentRefs, descriptorRefs []document.DocumentReference) []pendingReference {
	seen := make(map[string]bool, len(documentRefs)+len(descriptorRefs))
	var out []pendingReference
	for _, refs := range [][]document.DocumentReference{documentRefs, descriptorRefs} {
		for _, ref := range refs {
			id := document.MeadowlarkIDForReference(ref)
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, pendingReference{id: id, ref: ref})
		}
	}
	return out
}
