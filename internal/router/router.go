// Package router implements the static method_name -> handler lookup table
// used inside each worker. It owns no state and performs no I/O: method
// lookup, passing the raw envelope body to the handler, and response
// shaping. Typed-body decoding and encoding happen inside each handler.
package router

import "github.com/snowp/rplay/internal/envelope"

// Handler has the shape (body, backend) -> (responseBody, error). Typed
// request/response decoding is the handler's own responsibility; Router
// only moves raw bytes in and out.
type Handler[T any] func(body []byte, backend T) ([]byte, error)

// Router is a static method -> Handler table, built once at startup and
// shared read-only by every worker.
type Router[T any] struct {
	handlers map[string]Handler[T]
}

// New returns an empty Router. Register handlers before handing the
// Router to a worker pool; Router is read-only once workers start.
func New[T any]() *Router[T] {
	return &Router[T]{handlers: make(map[string]Handler[T])}
}

// Register binds a method name to a handler. Re-registering a method
// replaces the previous handler.
func (r *Router[T]) Register(method string, h Handler[T]) {
	r.handlers[method] = h
}

// Dispatch looks up e.Method, decodes/invokes/encodes through the
// matching Handler, and returns the response envelope. On an unknown
// method or a handler error, it returns an empty-body response instead
// of propagating the failure: see spec section 4.3's handler contract.
func (r *Router[T]) Dispatch(e *envelope.Envelope, backend T) *envelope.Envelope {
	h, ok := r.handlers[e.Method]
	if !ok {
		// Unknown method: silent success, zero body, per spec 4.4(1).
		return &envelope.Envelope{Session: e.Session}
	}

	body, err := h(e.Body, backend)
	if err != nil {
		// Decode failure or handler error: empty body, method preserved,
		// per spec 4.4(2).
		return &envelope.Envelope{Method: e.Method, Session: e.Session}
	}
	return &envelope.Envelope{Method: e.Method, Session: e.Session, Body: body}
}
