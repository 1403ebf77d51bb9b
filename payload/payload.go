package payload

import (
	"encoding/json"
	"fmt"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

// Payload is a domain value that can be converted to its durable form.
// Conversion may fail; a payload that cannot be converted is never queued.
type Payload interface {
	ToRecord() (*Record, error)
}

// PayloadFunc adapts a function to the Payload interface.
type PayloadFunc func() (*Record, error)

// ToRecord calls f.
func (f PayloadFunc) ToRecord() (*Record, error) {
	return f()
}

// JSONPayload sends Value encoded as JSON.
type JSONPayload struct {
	Type   string
	Method delivery.Method
	Path   string
	Value  any
}

// ToRecord marshals the value into a new record. Method defaults to POST.
func (p JSONPayload) ToRecord() (*Record, error) {
	data, err := json.Marshal(p.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Type, err)
	}
	method := p.Method
	if method == "" {
		method = delivery.MethodPost
	}
	return NewRecord(p.Type, method, p.Path, "application/json", data), nil
}

// RawPayload sends pre-encoded bytes.
type RawPayload struct {
	Type        string
	Method      delivery.Method
	Path        string
	ContentType string
	Data        []byte
}

// ToRecord copies the bytes into a new record. Method defaults to POST.
func (p RawPayload) ToRecord() (*Record, error) {
	if len(p.Data) == 0 {
		return nil, fmt.Errorf("%s payload: %w", p.Type, ErrEmptyRecord)
	}
	method := p.Method
	if method == "" {
		method = delivery.MethodPost
	}
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return NewRecord(p.Type, method, p.Path, p.ContentType, data), nil
}
