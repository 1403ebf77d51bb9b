package payload

import (
	"time"

	"github.com/google/uuid"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

// Record is the durable, serialized form of a payload. A Record is never
// mutated once created: a failed send either deletes it or leaves it as is.
type Record struct {
	// ID is a locally unique identifier.
	ID string `json:"id"`

	// Type names the kind of payload, e.g. "event" or "survey_response".
	Type string `json:"type"`

	// Method and Path locate the endpoint the payload is sent to.
	Method delivery.Method `json:"method"`
	Path   string          `json:"path"`

	ContentType string `json:"content_type"`

	// Data is the serialized payload body.
	Data []byte `json:"data"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRecord creates a record with a fresh identifier.
func NewRecord(payloadType string, method delivery.Method, path, contentType string, data []byte) *Record {
	return &Record{
		ID:          uuid.NewString(),
		Type:        payloadType,
		Method:      method,
		Path:        path,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
}

// String returns a short description for logs.
func (r *Record) String() string {
	return r.Type + ":" + r.ID
}
