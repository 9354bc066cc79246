package goOTP

import (
	"context"
	"path"
	"strings"
)

// RouteDecision is the outcome of [Engine.Guard]. When Allow is false,
// Redirect names the path the client should be sent to.
type RouteDecision struct {
	Allow    bool
	Redirect string
}

// Guard decides whether scope may enter urlPath. It is a pure read of the
// stored state and never calls the backend.
//
//   - Protected paths require a stored session, else redirect to login.
//   - The verify path requires a pending credential, else redirect to login.
//   - Login, register and verify redirect an authenticated client home.
func (e *Engine) Guard(ctx context.Context, scope, urlPath string) RouteDecision {
	routes := e.config.Routes
	p := cleanPath(urlPath)

	if pathUnder(p, routes.Protected) {
		if e.store.HasSession(ctx, scope) {
			return RouteDecision{Allow: true}
		}
		e.metrics.Inc(MetricRouteDenied)
		e.emitAudit(ctx, AuditRouteDenied, scope, false, ErrNotAuthenticated, map[string]string{"path": p})
		return RouteDecision{Redirect: routes.LoginPath}
	}

	entry := p == routes.LoginPath || p == routes.RegisterPath || p == routes.VerifyPath
	if entry && e.store.HasSession(ctx, scope) {
		return RouteDecision{Redirect: routes.HomePath}
	}

	if p == routes.VerifyPath {
		if _, err := e.store.Pending(ctx, scope); err != nil {
			return RouteDecision{Redirect: routes.LoginPath}
		}
	}
	return RouteDecision{Allow: true}
}

// pathUnder reports whether p equals one of prefixes or lies beneath it.
func pathUnder(p string, prefixes []string) bool {
	p = cleanPath(p)
	for _, prefix := range prefixes {
		prefix = cleanPath(prefix)
		if prefix == "/" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
