// Package mcp contains the protocol data types and constants the bridge
// exchanges with clients. It mirrors the wire representation of the Model
// Context Protocol for the subset of methods the bridge serves: the
// initialize handshake, ping, and the tools feature.
//
// The package is free of transport logic. The streaminghttp package frames
// these types over HTTP and the engine package produces them.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes.
//
// # Protocol Versions
//
// NegotiateProtocolVersion picks the revision answered during initialize:
// the client's own revision when the bridge knows it, DefaultProtocolVersion
// otherwise.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
