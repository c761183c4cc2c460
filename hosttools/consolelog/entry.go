// Package consolelog captures the bridge's own log output into a bounded
// store and exposes it to clients through the get_console_logs tool.
//
// Records reach the store through Capture, an slog.Handler that sits in
// front of the process handler. Two stores are provided: an in-process ring
// buffer and a Redis list that survives restarts of the bridge.
package consolelog

import "time"

// LogType classifies a captured entry.
type LogType string

const (
	TypeLog       LogType = "Log"
	TypeWarning   LogType = "Warning"
	TypeError     LogType = "Error"
	TypeAssert    LogType = "Assert"
	TypeException LogType = "Exception"
)

// LogTypes lists every LogType in severity order.
var LogTypes = []LogType{TypeLog, TypeWarning, TypeError, TypeAssert, TypeException}

// DefaultCapacity is the number of entries a store keeps unless configured
// otherwise.
const DefaultCapacity = 1000

// LogEntry is one captured log record.
type LogEntry struct {
	Type       LogType   `json:"type"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace"`
	Timestamp  time.Time `json:"timestamp"`
}
