package rmc

import "context"

// ClientInfo is the immutable snapshot of connection state a handler sees.
// Handlers never get a live reference to the connection: they
// receive this value and return their result, so they can't block the
// listener or race its state.
type ClientInfo struct {
	RemoteAddr string
	// UserID is the authenticated principal id, or 0 before login. Methods
	// marked login-required reject a zero UserID with AccessDenied.
	UserID uint32
}

// LoggedIn reports whether this client has completed authentication.
func (c ClientInfo) LoggedIn() bool { return c.UserID != 0 }

// ProtocolHandler implements one RMC protocol's method table.
type ProtocolHandler interface {
	ID() uint8
	Name() string
	NumMethods() uint32
	// MethodName returns a debug name for methodID, or "" if unknown.
	MethodName(methodID uint32) string
	// Handle invokes methodID with params and returns the encoded response
	// body. A *HandlerError selects the RMC error code sent back to the
	// client; any other error is treated as UnimplementedMethod.
	Handle(ctx context.Context, client ClientInfo, methodID uint32, params []byte) ([]byte, error)
}

// LoginRequired is implemented by a ProtocolHandler that wants methods
// gated on ClientInfo.LoggedIn() before Handle is even called.
type LoginRequired interface {
	// RequiresLogin reports whether methodID needs an authenticated
	// caller.
	RequiresLogin(methodID uint32) bool
}

// Registry maps protocol ids to handlers. Create one with NewRegistry; the
// zero value has no handler map, and Register panics on it.
type Registry struct {
	handlers map[uint8]ProtocolHandler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint8]ProtocolHandler)}
}

// Register adds h under its own ID. Registering a second handler with the
// same ID replaces the first.
func (r *Registry) Register(h ProtocolHandler) {
	r.handlers[h.ID()] = h
}

// Lookup returns the handler for protocolID, if any.
func (r *Registry) Lookup(protocolID uint8) (ProtocolHandler, bool) {
	h, ok := r.handlers[protocolID]
	return h, ok
}
