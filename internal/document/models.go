package document

// ResourceInfo identifies the schema/type of a document. It comes from the
// request pipeline; IsDescriptor lets read paths skip ownership checks.
type ResourceInfo struct {
	ProjectName     string `json:"projectName" bson:"projectName"`
	ResourceName    string `json:"resourceName" bson:"resourceName"`
	ResourceVersion string `json:"resourceVersion" bson:"resourceVersion"`
	IsDescriptor    bool   `json:"isDescriptor" bson:"isDescriptor"`
}

// DocumentIdentity is the natural key of a document: flattened identity
// paths mapped to scalar values.
type DocumentIdentity map[string]any

// DocumentReference points at another document (or descriptor) by its
// resource and natural identity.
type DocumentReference struct {
	ProjectName      string           `json:"projectName"`
	ResourceName     string           `json:"resourceName"`
	DocumentIdentity DocumentIdentity `json:"documentIdentity"`
	IsDescriptor     bool             `json:"isDescriptor,omitempty"`
}

// SuperclassInfo names the superclass a subclass document also claims to be,
// with the identity expressed in superclass terms.
type SuperclassInfo struct {
	ProjectName      string           `json:"projectName"`
	ResourceName     string           `json:"resourceName"`
	DocumentIdentity DocumentIdentity `json:"documentIdentity"`
}

// DocumentInfo is the output of the extraction pipeline for one write.
type DocumentInfo struct {
	DocumentIdentity     DocumentIdentity    `json:"documentIdentity"`
	DocumentReferences   []DocumentReference `json:"documentReferences,omitempty"`
	DescriptorReferences []DocumentReference `json:"descriptorReferences,omitempty"`
	SuperclassInfo       *SuperclassInfo     `json:"superclassInfo,omitempty"`
}

// Document is the unit of storage. MeadowlarkID is the primary key in every
// backend; DocumentUUID is assigned on first insert and never changes.
type Document struct {
	MeadowlarkID     string           `json:"meadowlarkId" bson:"_id"`
	DocumentUUID     string           `json:"documentUuid" bson:"documentUuid"`
	ProjectName      string           `json:"projectName" bson:"projectName"`
	ResourceName     string           `json:"resourceName" bson:"resourceName"`
	ResourceVersion  string           `json:"resourceVersion" bson:"resourceVersion"`
	IsDescriptor     bool             `json:"isDescriptor" bson:"isDescriptor"`
	DocumentIdentity DocumentIdentity `json:"documentIdentity" bson:"documentIdentity"`
	EdfiDoc          map[string]any   `json:"edfiDoc" bson:"edfiDoc"`
	OutboundRefs     []string         `json:"outboundRefs" bson:"outboundRefs"`
	AliasIDs         []string         `json:"aliasIds" bson:"aliasIds"`
	Validated        bool             `json:"validated" bson:"validated"`
	CreatedBy        string           `json:"createdBy" bson:"createdBy"`
	CreatedAt        int64            `json:"createdAt" bson:"createdAt"`
	LastModifiedAt   int64            `json:"lastModifiedAt" bson:"lastModifiedAt"`
}

// Blocking converts the document into the diagnostic shape returned to callers.
func (d *Document) Blocking() BlockingDocument {
	return BlockingDocument{
		DocumentUUID:    d.DocumentUUID,
		ResourceName:    d.ResourceName,
		ProjectName:     d.ProjectName,
		ResourceVersion: d.ResourceVersion,
	}
}

// BlockingDocument is an existing document that prevents a write.
type BlockingDocument struct {
	DocumentUUID    string `json:"documentUuid"`
	ResourceName    string `json:"resourceName"`
	ProjectName     string `json:"projectName"`
	ResourceVersion string `json:"resourceVersion"`
}

// ReferenceFailure describes one reference that did not resolve.
type ReferenceFailure struct {
	MeadowlarkID     string           `json:"meadowlarkId"`
	ProjectName      string           `json:"projectName"`
	ResourceName     string           `json:"resourceName"`
	IsDescriptor     bool             `json:"isDescriptor"`
	DocumentIdentity DocumentIdentity `json:"documentIdentity"`
	Message          string           `json:"message"`
}
