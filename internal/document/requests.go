package document

// AuthorizationStrategy selects how the caller's writes are secured.
type AuthorizationStrategy string

const (
	StrategyOwnershipBased AuthorizationStrategy = "OWNERSHIP_BASED"
	StrategyFullAccess     AuthorizationStrategy = "FULL_ACCESS"
)

// Security is the authenticated caller as seen by the core.
type Security struct {
	ClientID              string                `json:"clientId"`
	AuthorizationStrategy AuthorizationStrategy `json:"authorizationStrategy"`
}

// Action is the kind of request being secured.
type Action string

const (
	ActionUpsert     Action = "upsert"
	ActionUpdateByID Action = "updateById"
	ActionGetByID    Action = "getById"
	ActionQuery      Action = "query"
	ActionDeleteByID Action = "deleteById"
)

// UpsertRequest is a write addressed by natural identity. MeadowlarkID may be
// left empty, in which case it is derived from ResourceInfo and DocumentInfo.
type UpsertRequest struct {
	MeadowlarkID                    string
	ResourceInfo                    ResourceInfo
	DocumentInfo                    DocumentInfo
	EdfiDoc                         map[string]any
	ValidateDocumentReferencesExist bool
	TraceID                         string
	Security                        Security
}

// UpdateRequest replaces the content of the document with the given uuid.
type UpdateRequest struct {
	DocumentUUID                    string
	ResourceInfo                    ResourceInfo
	DocumentInfo                    DocumentInfo
	EdfiDoc                         map[string]any
	ValidateDocumentReferencesExist bool
	TraceID                         string
	Security                        Security
}

type GetRequest struct {
	DocumentUUID string
	ResourceInfo ResourceInfo
	TraceID      string
	Security     Security
}

type DeleteRequest struct {
	DocumentUUID                   string
	ResourceInfo                   ResourceInfo
	ValidateNoReferencesToDocument bool
	TraceID                        string
	Security                       Security
}
