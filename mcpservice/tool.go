package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-bridge-go/internal/future"
	"github.com/invopop/jsonschema"
)

// Tool is a named, schema-described callable operation.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is a JSON Schema document describing the accepted arguments.
	InputSchema() json.RawMessage
	// Execute runs the tool with the raw JSON arguments of a tools/call
	// request. A non-nil error is reported to the client as a failed tool
	// result, not as a protocol error.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ToolFunc executes a tool from its raw argument JSON.
type ToolFunc func(ctx context.Context, args json.RawMessage) (any, error)

type funcTool struct {
	name        string
	description string
	schema      json.RawMessage
	fn          ToolFunc
}

func (t *funcTool) Name() string                 { return t.name }
func (t *funcTool) Description() string          { return t.description }
func (t *funcTool) InputSchema() json.RawMessage { return t.schema }

func (t *funcTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	return t.fn(ctx, args)
}

// emptyObjectSchema accepts any object.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// NewRawTool builds a Tool from a hand-written schema. A nil schema accepts
// any object.
func NewRawTool(name, description string, schema json.RawMessage, fn ToolFunc) Tool {
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithDescription sets the tool description used in listings.
func WithDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// runtime decoding rejects unknown fields.
func WithAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a Tool from a typed args struct A. The input schema is
// reflected from A with invopop/jsonschema and arguments are decoded into A
// before fn runs. Missing or empty arguments decode to the zero A.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...ToolOption) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &funcTool{
		name:        name,
		description: cfg.description,
		schema:      reflectInputSchema[A](cfg.allowAdditionalProperties),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a A
			if err := decodeArgs(raw, &a, cfg.allowAdditionalProperties); err != nil {
				return nil, err
			}
			return fn(ctx, a)
		},
	}
}

func decodeArgs(raw json.RawMessage, v any, allowAdditional bool) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !allowAdditional {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// reflectInputSchema reflects a Go type A into an object JSON Schema.
// Non-object types produce an empty object schema.
func reflectInputSchema[A any](allowAdditional bool) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return emptyObjectSchema
	}
	s.Version = ""
	s.ID = ""

	b, err := json.Marshal(s)
	if err != nil {
		return emptyObjectSchema
	}
	return b
}

// Deferred is a tool result that is not available yet. The transport awaits
// it outside the serialized execution context.
type Deferred interface {
	Await(ctx context.Context) (any, error)
}

type deferredFuture[T any] struct {
	f *future.Future[T]
}

func (d deferredFuture[T]) Await(ctx context.Context) (any, error) {
	v, err := d.f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Defer adapts a future into a Deferred tool result.
func Defer[T any](f *future.Future[T]) Deferred {
	return deferredFuture[T]{f: f}
}
