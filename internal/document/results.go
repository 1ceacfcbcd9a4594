package document

type UpsertResponse string

const (
	InsertSuccess          UpsertResponse = "INSERT_SUCCESS"
	UpdateSuccess          UpsertResponse = "UPDATE_SUCCESS"
	InsertFailureConflict  UpsertResponse = "INSERT_FAILURE_CONFLICT"
	InsertFailureReference UpsertResponse = "INSERT_FAILURE_REFERENCE"
	UpdateFailureReference UpsertResponse = "UPDATE_FAILURE_REFERENCE"
	UpsertUnknownFailure   UpsertResponse = "UNKNOWN_FAILURE"
)

// UpsertResult is the typed outcome of an upsert. Validation failures are
// carried here, never as errors.
type UpsertResult struct {
	Response          UpsertResponse     `json:"response"`
	DocumentUUID      string             `json:"documentUuid,omitempty"`
	FailureMessage    string             `json:"failureMessage,omitempty"`
	Failures          []ReferenceFailure `json:"failures,omitempty"`
	BlockingDocuments []BlockingDocument `json:"blockingDocuments,omitempty"`
}

type UpdateResponse string

const (
	UpdateByIDSuccess              UpdateResponse = "UPDATE_SUCCESS"
	UpdateFailureNotExists         UpdateResponse = "UPDATE_FAILURE_NOT_EXISTS"
	UpdateFailureImmutableIdentity UpdateResponse = "UPDATE_FAILURE_IMMUTABLE_IDENTITY"
	UpdateByIDFailureReference     UpdateResponse = "UPDATE_FAILURE_REFERENCE"
	UpdateUnknownFailure           UpdateResponse = "UNKNOWN_FAILURE"
)

type UpdateResult struct {
	Response          UpdateResponse     `json:"response"`
	FailureMessage    string             `json:"failureMessage,omitempty"`
	Failures          []ReferenceFailure `json:"failures,omitempty"`
	BlockingDocuments []BlockingDocument `json:"blockingDocuments,omitempty"`
}

type GetResponse string

const (
	GetSuccess          GetResponse = "GET_SUCCESS"
	GetFailureNotExists GetResponse = "GET_FAILURE_NOT_EXISTS"
	GetUnknownFailure   GetResponse = "UNKNOWN_FAILURE"
)

type GetResult struct {
	Response GetResponse
	Document *Document
}

type DeleteResponse string

const (
	DeleteSuccess          DeleteResponse = "DELETE_SUCCESS"
	DeleteFailureNotExists DeleteResponse = "DELETE_FAILURE_NOT_EXISTS"
	DeleteFailureReference DeleteResponse = "DELETE_FAILURE_REFERENCE"
	DeleteUnknownFailure   DeleteResponse = "UNKNOWN_FAILURE"
)

type DeleteResult struct {
	Response          DeleteResponse     `json:"response"`
	FailureMessage    string             `json:"failureMessage,omitempty"`
	BlockingDocuments []BlockingDocument `json:"blockingDocuments,omitempty"`
}
