package sessions

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-bridge-go/mcp"
	"github.com/google/uuid"
)

// ErrAlreadyInitialized is returned by MarkInitializing when the handshake
// parameters were already recorded.
var ErrAlreadyInitialized = errors.New("session already initialized")

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the handshake state of one client connection. Its id is fixed
// at construction.
type Session struct {
	id string

	mu              sync.RWMutex
	state           SessionState
	protocolVersion string
	clientInfo      mcp.ImplementationInfo
}

// New creates an Uninitialized session with a fresh random id.
func New() *Session {
	return &Session{id: uuid.NewString()}
}

// ID returns the opaque session token.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ProtocolVersion returns the version negotiated during initialize, or "".
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// ClientInfo returns the identity the client sent during initialize.
func (s *Session) ClientInfo() mcp.ImplementationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// MarkInitializing records the handshake parameters and moves the session to
// StateInitializing. It fails with ErrAlreadyInitialized from any other state
// than StateUninitialized and leaves the session unchanged.
func (s *Session) MarkInitializing(protocolVersion string, clientInfo mcp.ImplementationInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, s.state)
	}
	s.protocolVersion = protocolVersion
	s.clientInfo = clientInfo
	s.state = StateInitializing
	return nil
}

// MarkReady moves the session to StateReady regardless of its prior state.
func (s *Session) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
}
