// Package http hosts the REST API: router, server lifecycle and the global
// middleware stack. Handlers and routes live in subpackages.
package http

import (
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Router registers routes. Route level middleware runs in the order given,
// the first one outermost.
type Router interface {
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)
	POST(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PUT(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware)
	DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Group mounts fn under prefix with middlewares applied to every route.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use appends global middleware. Call it before registering routes.
	Use(middlewares ...Middleware)

	// With returns a router whose routes all get middlewares.
	With(middlewares ...Middleware) Router

	// Mount attaches a plain handler under prefix, e.g. /metrics.
	Mount(prefix string, h http.Handler)

	Handler() http.Handler

	// Walk visits every registered route.
	Walk(fn func(method, path string) error) error
}

// Chain wraps handler so that middlewares[0] runs first.
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
