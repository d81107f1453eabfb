package server

import (
	"time"

	"github.com/rs/zerolog"
)

// HandlerFunc handles one decoded message for a session.
type HandlerFunc func(s *Session, raw []byte)

// Option configures handler registration.
type Option func(*route)

type route struct {
	h      HandlerFunc
	public bool
	logged bool
}

// Public lets the handler run before the session authenticated.
func Public() Option {
	return func(r *route) {
		r.public = true
	}
}

// Logged adds debug logging around the handler.
func Logged() Option {
	return func(r *route) {
		r.logged = true
	}
}

// Dispatcher routes messages to handlers by their type discriminator.
type Dispatcher struct {
	Logger zerolog.Logger
	routes map[string]route
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{Logger: logger, routes: make(map[string]route)}
}

// Register adds a handler for the given message type.
func (d *Dispatcher) Register(msgType string, h HandlerFunc, opts ...Option) {
	r := route{h: h}
	for _, opt := range opts {
		opt(&r)
	}
	d.routes[msgType] = r
}

// Dispatch routes a message. Unknown types and messages that need an
// authenticated session are answered with ERROR_RESPONSE.
func (d *Dispatcher) Dispatch(s *Session, msgType string, raw []byte) {
	r, ok := d.routes[msgType]
	if !ok {
		s.sendError(msgType, "unknown message type")
		return
	}
	if !r.public && !s.Authenticated() {
		s.sendError(msgType, "not authenticated")
		return
	}
	if !r.logged {
		r.h(s, raw)
		return
	}
	start := time.Now()
	r.h(s, raw)
	d.Logger.Debug().Str("session", s.ID).Str("type", msgType).Dur("took", time.Since(start)).Msg("handled")
}
