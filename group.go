package nextrush

import "path"

// Group is a path prefix plus a chain of middleware applied to every route
// registered through it, matching teacher group.go's `Group` API
// (`GET`/`POST`/.../`Group`) generalized to this module's `Next`-based
// `Middleware` signature.
type Group struct {
	app    *App
	prefix string
	chain  []Middleware
}

// Group returns a new `*Group` nested under prefix, inheriting the app's
// routes and this group's middleware chain.
func (g *Group) Group(prefix string) *Group {
	return &Group{
		app:    g.app,
		prefix: joinPrefix(g.prefix, prefix),
		chain:  append([]Middleware(nil), g.chain...),
	}
}

// Use appends middleware to the group's chain. It only affects routes
// registered after the call, matching `App.Use`'s semantics.
func (g *Group) Use(mw ...Middleware) {
	g.chain = append(g.chain, mw...)
}

func (g *Group) handle(method, relPath string, handler Handler) {
	g.app.router.insert(method, joinPrefix(g.prefix, relPath), handler, append([]Middleware(nil), g.chain...))
}

// GET registers a GET route under the group's prefix.
func (g *Group) GET(relPath string, handler Handler) { g.handle("GET", relPath, handler) }

// HEAD registers a HEAD route under the group's prefix.
func (g *Group) HEAD(relPath string, handler Handler) { g.handle("HEAD", relPath, handler) }

// POST registers a POST route under the group's prefix.
func (g *Group) POST(relPath string, handler Handler) { g.handle("POST", relPath, handler) }

// PUT registers a PUT route under the group's prefix.
func (g *Group) PUT(relPath string, handler Handler) { g.handle("PUT", relPath, handler) }

// PATCH registers a PATCH route under the group's prefix.
func (g *Group) PATCH(relPath string, handler Handler) { g.handle("PATCH", relPath, handler) }

// DELETE registers a DELETE route under the group's prefix.
func (g *Group) DELETE(relPath string, handler Handler) { g.handle("DELETE", relPath, handler) }

// OPTIONS registers an OPTIONS route under the group's prefix.
func (g *Group) OPTIONS(relPath string, handler Handler) { g.handle("OPTIONS", relPath, handler) }

// Static serves files out of root under the group's prefix+relPath. See
// static.go for the cache/compression/range handling.
func (g *Group) Static(relPath, root string) {
	g.app.registerStatic(joinPrefix(g.prefix, relPath), root, append([]Middleware(nil), g.chain...))
}

// WS registers a WebSocket upgrade route under the group's prefix. See
// websocket.go.
func (g *Group) WS(relPath string, handler WSHandler) {
	g.app.registerWS(joinPrefix(g.prefix, relPath), handler, append([]Middleware(nil), g.chain...))
}

func joinPrefix(prefix, relPath string) string {
	if relPath == "" {
		relPath = "/"
	}

	joined := path.Join(prefix, relPath)
	if joined == "" {
		joined = "/"
	}

	// path.Join strips a trailing wildcard's significance only in
	// appearance; "*" segments are preserved as-is since path.Join never
	// touches a bare "*" segment's characters.
	if !hasPathPrefix(joined, "/") {
		joined = "/" + joined
	}

	return joined
}

func hasPathPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
