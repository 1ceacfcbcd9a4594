package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
)

// Extractor turns a request body into the identity, references and content
// of a write. Schema-driven extraction plugs in here.
type Extractor interface {
	Extract(ri document.ResourceInfo, body []byte) (document.DocumentInfo, map[string]any, error)
}

// Envelope is the body shape read by EnvelopeExtractor.
type Envelope struct {
	DocumentIdentity     document.DocumentIdentity    `json:"documentIdentity"`
	DocumentReferences   []document.DocumentReference `json:"documentReferences"`
	DescriptorReferences []document.DocumentReference `json:"descriptorReferences"`
	SuperclassInfo       *document.SuperclassInfo     `json:"superclassInfo"`
	EdfiDoc              map[string]any               `json:"edfiDoc"`
}

// EnvelopeExtractor reads pre-extracted document info from an Envelope. A
// reference without a project inherits the project of the route.
type EnvelopeExtractor struct{}

var errMissingIdentity = errors.New("documentIdentity is required")

func (EnvelopeExtractor) Extract(ri document.ResourceInfo, body []byte) (document.DocumentInfo, map[string]any, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return document.DocumentInfo{}, nil, fmt.Errorf("invalid request body: %w", err)
	}
	if len(env.DocumentIdentity) == 0 {
		return document.DocumentInfo{}, nil, errMissingIdentity
	}

	for i := range env.DocumentReferences {
		inheritProject(&env.DocumentReferences[i].ProjectName, ri.ProjectName)
	}
	for i := range env.DescriptorReferences {
		inheritProject(&env.DescriptorReferences[i].ProjectName, ri.ProjectName)
		env.DescriptorReferences[i].IsDescriptor = true
	}
	if env.SuperclassInfo != nil {
		inheritProject(&env.SuperclassInfo.ProjectName, ri.ProjectName)
	}
	if env.EdfiDoc == nil {
		env.EdfiDoc = map[string]any{}
	}

	info := document.DocumentInfo{
		DocumentIdentity:     env.DocumentIdentity,
		DocumentReferences:   env.DocumentReferences,
		DescriptorReferences: env.DescriptorReferences,
		SuperclassInfo:       env.SuperclassInfo,
	}
	return info, env.EdfiDoc, nil
}

func inheritProject(p *string, project string) {
	if *p == "" {
		*p = project
	}
}
