/*
Package transport owns the network layer: framed connections, the module
router, the server-side connection registry, and the client dialer.

This file defines the Router, which maps a module name to exactly one
registered handler and validates the protocol envelope before any payload
reaches a handler. Malformed or misaddressed frames are logged and discarded
so a bad frame can never propagate into a feature module.
*/
package transport

import (
	"sync"

	"github.com/rs/zerolog"

	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/protocol"
)

// Handler processes one validated inbound frame for a module. connID is the
// connection the frame arrived on. Handlers are called synchronously in
// per-connection arrival order but must not assume single-threaded access
// across connections.
type Handler func(connID string, frame protocol.Frame)

// Router demultiplexes inbound frames to module handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	logger zerolog.Logger
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logx.Logger().With().Str("component", "Router").Logger(),
	}
}

// RegisterHandler binds a handler to a module name. Registering a second
// handler for the same module is an error.
func (r *Router) RegisterHandler(module string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[module]; ok {
		return errs.NewError(errs.ErrDuplicateHandler, module)
	}

	r.handlers[module] = handler
	return nil
}

// Dispatch validates the frame's envelope and hands it to the module's
// handler. A frame for an unregistered module, or whose type URL lies
// outside the module's namespace, is logged and discarded; the connection
// stays alive.
func (r *Router) Dispatch(connID string, frame protocol.Frame) {
	r.mu.RLock()
	handler, ok := r.handlers[frame.Module]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn().
			Str("connection_id", connID).
			Str("module", frame.Module).
			Int("code", errs.ErrUnknownModule).
			Msg("Frame for unregistered module, discarding")
		return
	}

	if !frame.BelongsTo(frame.Module) {
		r.logger.Warn().
			Str("connection_id", connID).
			Str("module", frame.Module).
			Str("type", frame.Type).
			Int("code", errs.ErrNamespaceMismatch).
			Msg("Envelope type outside module namespace, discarding")
		return
	}

	handler(connID, frame)
}
