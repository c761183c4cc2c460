package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is the id of a JSON-RPC request. It holds a string, an int64, a
// float64, or nothing at all for notifications.
type RequestID struct {
	value any
}

// NewRequestID wraps a string or numeric id. Any other value yields an empty
// id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int64, float64:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	case int32:
		return &RequestID{value: int64(v)}
	case uint32:
		return &RequestID{value: int64(v)}
	case float32:
		return &RequestID{value: float64(v)}
	default:
		return &RequestID{}
	}
}

// String renders the id for logs. An empty id renders as "".
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode request id: %w", err)
	}
	switch v := raw.(type) {
	case nil:
		id.value = nil
	case string:
		id.value = v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			id.value = n
			return nil
		}
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("request id %s is out of range: %w", v, err)
		}
		id.value = f
	default:
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", data)
	}
	return nil
}
