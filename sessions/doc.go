// Package sessions defines the session held by the bridge for its single
// connected client.
//
// A Session carries the opaque id handed to the client in the Mcp-Session-Id
// header, the negotiated protocol version and the client's identity, and a
// three-state lifecycle:
//
//	Uninitialized -> Initializing -> Ready
//
// MarkInitializing records the handshake parameters and is only accepted from
// Uninitialized. MarkReady acknowledges the handshake from any state. State
// never moves backwards within one Session; terminating a session means
// replacing the Session value with a new one.
package sessions
