package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/service"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/security"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/middleware"
)

const (
	// TraceHeader carries a caller-supplied correlation id.
	TraceHeader = "X-Trace-Id"
	// ReferenceValidationHeader set to "false" lets full-access clients skip reference checks.
	ReferenceValidationHeader = "reference-validation"

	ctxDocumentInfo = "documentInfo"
	ctxEdfiDoc      = "edfiDoc"
	ctxTraceID      = "traceId"

	maxBodyBytes = 1 << 20
)

type Options struct {
	// ReferenceValidation is on unless a permitted caller opts out.
	ReferenceValidation bool
	// AllowBypass permits FULL_ACCESS callers to send reference-validation: false.
	AllowBypass bool
	// Catalog marks descriptor resources. Without one no route is a descriptor.
	Catalog ResourceCatalog
}

type Handler struct {
	svc       *service.Service
	lookup    security.DocumentLookup
	extractor Extractor
	opts      Options
}

func New(svc *service.Service, lookup security.DocumentLookup, extractor Extractor, opts Options) *Handler {
	if extractor == nil {
		extractor = EnvelopeExtractor{}
	}
	if opts.Catalog == nil {
		opts.Catalog = DescriptorSet{}
	}
	return &Handler{svc: svc, lookup: lookup, extractor: extractor, opts: opts}
}

// Register mounts the document routes behind pre, which must include
// something that stores a document.Security the way middleware.AuthMiddleware does.
func (h *Handler) Register(rg *gin.RouterGroup, pre ...gin.HandlerFunc) {
	const collection = "/:project/:version/:resource"
	const item = collection + "/:documentUuid"

	chain := func(hs ...gin.HandlerFunc) []gin.HandlerFunc {
		out := append([]gin.HandlerFunc{}, pre...)
		return append(append(out, h.trace), hs...)
	}
	rg.POST(collection, chain(h.readBody, h.gate(document.ActionUpsert), h.upsert)...)
	rg.GET(item, chain(h.gate(document.ActionGetByID), h.get)...)
	rg.PUT(item, chain(h.readBody, h.gate(document.ActionUpdateByID), h.update)...)
	rg.DELETE(item, chain(h.gate(document.ActionDeleteByID), h.delete)...)
}

func (h *Handler) resourceInfo(c *gin.Context) document.ResourceInfo {
	project, resource := c.Param("project"), c.Param("resource")
	return document.ResourceInfo{
		ProjectName:     project,
		ResourceName:    resource,
		ResourceVersion: c.Param("version"),
		IsDescriptor:    h.opts.Catalog.IsDescriptor(project, resource),
	}
}

func (h *Handler) trace(c *gin.Context) {
	id := c.GetHeader(TraceHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ctxTraceID, id)
	c.Header(TraceHeader, id)
	c.Next()
}

func traceID(c *gin.Context) string { return c.GetString(ctxTraceID) }

func caller(c *gin.Context) document.Security {
	sec, _ := middleware.SecurityFrom(c)
	return sec
}

func (h *Handler) readBody(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	info, edfiDoc, err := h.extractor.Extract(h.resourceInfo(c), body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Set(ctxDocumentInfo, info)
	c.Set(ctxEdfiDoc, edfiDoc)
	c.Next()
}

func bodyOf(c *gin.Context) (document.DocumentInfo, map[string]any) {
	info, _ := c.Get(ctxDocumentInfo)
	edfiDoc, _ := c.Get(ctxEdfiDoc)
	di, _ := info.(document.DocumentInfo)
	ed, _ := edfiDoc.(map[string]any)
	return di, ed
}

func (h *Handler) gate(action document.Action) gin.HandlerFunc {
	return middleware.OwnershipMiddleware(h.lookup, func(c *gin.Context) security.Request {
		req := security.Request{
			Action:       action,
			ResourceInfo: h.resourceInfo(c),
			DocumentUUID: c.Param("documentUuid"),
			Security:     caller(c),
			TraceID:      traceID(c),
		}
		if info, ok := c.Get(ctxDocumentInfo); ok {
			di := info.(document.DocumentInfo)
			req.DocumentInfo = &di
		}
		return req
	})
}

// validateReferences applies the bypass header for permitted callers.
func (h *Handler) validateReferences(c *gin.Context) bool {
	if !h.opts.ReferenceValidation {
		return false
	}
	if h.opts.AllowBypass &&
		strings.EqualFold(c.GetHeader(ReferenceValidationHeader), "false") &&
		caller(c).AuthorizationStrategy == document.StrategyFullAccess {
		logger.Debugt(traceID(c), "reference validation bypassed by %s", caller(c).ClientID)
		return false
	}
	return true
}

func (h *Handler) upsert(c *gin.Context) {
	info, edfiDoc := bodyOf(c)
	res := h.svc.Upsert(c.Request.Context(), document.UpsertRequest{
		ResourceInfo:                    h.resourceInfo(c),
		DocumentInfo:                    info,
		EdfiDoc:                         edfiDoc,
		ValidateDocumentReferencesExist: h.validateReferences(c),
		TraceID:                         traceID(c),
		Security:                        caller(c),
	})

	switch res.Response {
	case document.InsertSuccess:
		c.Header("Location", strings.TrimRight(c.Request.URL.Path, "/")+"/"+res.DocumentUUID)
		c.Status(http.StatusCreated)
	case document.UpdateSuccess:
		c.Header("Location", strings.TrimRight(c.Request.URL.Path, "/")+"/"+res.DocumentUUID)
		c.Status(http.StatusOK)
	case document.InsertFailureConflict, document.InsertFailureReference, document.UpdateFailureReference:
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert failed", "traceId": traceID(c)})
	}
}

func (h *Handler) get(c *gin.Context) {
	res := h.svc.GetByID(c.Request.Context(), document.GetRequest{
		DocumentUUID: c.Param("documentUuid"),
		ResourceInfo: h.resourceInfo(c),
		TraceID:      traceID(c),
		Security:     caller(c),
	})
	switch res.Response {
	case document.GetSuccess:
		body := make(map[string]any, len(res.Document.EdfiDoc)+1)
		for k, v := range res.Document.EdfiDoc {
			body[k] = v
		}
		body["id"] = res.Document.DocumentUUID
		c.JSON(http.StatusOK, body)
	case document.GetFailureNotExists:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed", "traceId": traceID(c)})
	}
}

func (h *Handler) update(c *gin.Context) {
	info, edfiDoc := bodyOf(c)
	res := h.svc.UpdateByID(c.Request.Context(), document.UpdateRequest{
		DocumentUUID:                    c.Param("documentUuid"),
		ResourceInfo:                    h.resourceInfo(c),
		DocumentInfo:                    info,
		EdfiDoc:                         edfiDoc,
		ValidateDocumentReferencesExist: h.validateReferences(c),
		TraceID:                         traceID(c),
		Security:                        caller(c),
	})
	switch res.Response {
	case document.UpdateByIDSuccess:
		c.Status(http.StatusNoContent)
	case document.UpdateFailureNotExists:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case document.UpdateFailureImmutableIdentity:
		c.JSON(http.StatusBadRequest, res)
	case document.UpdateByIDFailureReference:
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed", "traceId": traceID(c)})
	}
}

func (h *Handler) delete(c *gin.Context) {
	res := h.svc.DeleteByID(c.Request.Context(), document.DeleteRequest{
		DocumentUUID:                   c.Param("documentUuid"),
		ResourceInfo:                   h.resourceInfo(c),
		ValidateNoReferencesToDocument: h.validateReferences(c),
		TraceID:                        traceID(c),
		Security:                       caller(c),
	})
	switch res.Response {
	case document.DeleteSuccess:
		c.Status(http.StatusNoContent)
	case document.DeleteFailureNotExists:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case document.DeleteFailureReference:
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed", "traceId": traceID(c)})
	}
}
