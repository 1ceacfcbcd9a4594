package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DeserializationError reports a stored record that does not have the
// Document shape.
type DeserializationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deserialize document %q: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("deserialize document %q: %s", e.Key, e.Reason)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// Validate checks the fields every stored document must carry.
func (d *Document) Validate() error {
	var missing []string
	if d.MeadowlarkID == "" {
		missing = append(missing, "meadowlarkId")
	}
	if d.DocumentUUID == "" {
		missing = append(missing, "documentUuid")
	}
	if d.ResourceName == "" {
		missing = append(missing, "resourceName")
	}
	if d.ProjectName == "" {
		missing = append(missing, "projectName")
	}
	if len(missing) > 0 {
		return &DeserializationError{Key: d.MeadowlarkID, Reason: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

// Encode serializes a document for key-value backends.
func Encode(d *Document) ([]byte, error) {
	return json.Marshal(d)
}

// Decode parses and validates a stored record. key names the record in errors.
func Decode(key string, raw []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &DeserializationError{Key: key, Reason: "malformed record", Err: err}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
