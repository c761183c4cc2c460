// Package mcpservice defines the tool contract of the bridge and the registry
// tools are served from.
//
// A Tool has a unique name, a human description, a JSON Schema describing its
// arguments, and an Execute operation from raw argument JSON to a result
// value. The engine never looks past this contract.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo back"`
//	}
//
//	reg := mcpservice.NewRegistry()
//	reg.Register(mcpservice.NewTool("echo",
//	    func(ctx context.Context, a EchoArgs) (any, error) {
//	        return a.Message, nil
//	    },
//	    mcpservice.WithDescription("Echo a message back to the caller"),
//	))
//
// # Registration
//
// Register rejects a second tool with an existing name by returning false and
// keeps the first one. Tools are registered at startup; the registry is only
// read afterwards.
//
// # Long-running tools
//
// Execute runs on the bridge's serialized execution context, so it must not
// block for long. A tool that starts slow work returns a Deferred (see Defer)
// and the transport awaits it outside that context.
package mcpservice
