package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
)

// RequiredString extracts the string at keys from params. A missing key or a
// value of another JSON type fails with an error wrapping ErrInvalidParams.
func RequiredString(params json.RawMessage, keys ...string) (string, error) {
	v, typ, err := lookup(params, keys)
	if err != nil {
		return "", err
	}
	switch typ {
	case jsonparser.NotExist, jsonparser.Null:
		return "", fmt.Errorf("%w: missing %q", ErrInvalidParams, strings.Join(keys, "."))
	case jsonparser.String:
	default:
		return "", fmt.Errorf("%w: %q must be a string, got %s", ErrInvalidParams, strings.Join(keys, "."), typ)
	}
	s, err := jsonparser.ParseString(v)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidParams, strings.Join(keys, "."), err)
	}
	return s, nil
}

// OptionalObject extracts the object at keys from params, falling back to def
// when the key is absent or null. Any other JSON type fails with an error
// wrapping ErrInvalidParams.
func OptionalObject(params json.RawMessage, def json.RawMessage, keys ...string) (json.RawMessage, error) {
	v, typ, err := lookup(params, keys)
	if err != nil {
		return nil, err
	}
	switch typ {
	case jsonparser.NotExist, jsonparser.Null:
		return def, nil
	case jsonparser.Object:
		out := make(json.RawMessage, len(v))
		copy(out, v)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be an object, got %s", ErrInvalidParams, strings.Join(keys, "."), typ)
	}
}

// DecodeParams unmarshals params into v. Absent params decode as an empty
// object. Shape mismatches wrap ErrInvalidParams.
func DecodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func lookup(params json.RawMessage, keys []string) ([]byte, jsonparser.ValueType, error) {
	if len(params) == 0 {
		return nil, jsonparser.NotExist, nil
	}
	v, typ, _, err := jsonparser.Get(params, keys...)
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return nil, jsonparser.NotExist, nil
		}
		return nil, jsonparser.Unknown, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return v, typ, nil
}
