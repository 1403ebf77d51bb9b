package delivery

import (
	"encoding/json"
	"fmt"
)

// Serializer produces the body bytes of a request.
type Serializer interface {
	Serialize() ([]byte, error)
}

// Deserializer converts response bytes into a typed value.
type Deserializer[T any] interface {
	Deserialize(data []byte) (T, error)
}

// SerializerFunc adapts a function to the Serializer interface.
type SerializerFunc func() ([]byte, error)

// Serialize calls f.
func (f SerializerFunc) Serialize() ([]byte, error) {
	return f()
}

// DeserializerFunc adapts a function to the Deserializer interface.
type DeserializerFunc[T any] func(data []byte) (T, error)

// Deserialize calls f.
func (f DeserializerFunc[T]) Deserialize(data []byte) (T, error) {
	return f(data)
}

// BytesSerializer sends a fixed byte slice as the request body.
type BytesSerializer []byte

// Serialize returns a copy of the bytes.
func (b BytesSerializer) Serialize() ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// JSONSerializer marshals Value as the request body.
type JSONSerializer struct {
	Value any
}

// Serialize marshals the value.
func (s JSONSerializer) Serialize() ([]byte, error) {
	data, err := json.Marshal(s.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return data, nil
}

// BytesDeserializer returns the raw response bytes.
var BytesDeserializer Deserializer[[]byte] = DeserializerFunc[[]byte](func(data []byte) ([]byte, error) {
	return data, nil
})

// StringDeserializer decodes the response as UTF-8 text.
var StringDeserializer Deserializer[string] = DeserializerFunc[string](func(data []byte) (string, error) {
	return string(data), nil
})

// JSONDeserializer decodes the response body as JSON into T.
type JSONDeserializer[T any] struct{}

// Deserialize unmarshals data into a new T.
func (JSONDeserializer[T]) Deserialize(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal response body: %w", err)
	}
	return v, nil
}
