package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultScopeCookie is the cookie name used when ScopeOptions.CookieName
// is empty.
const DefaultScopeCookie = "otp_scope"

type scopeContextKey struct{}

// ScopeOptions configures the client scope cookie.
type ScopeOptions struct {
	CookieName string
	Secure     bool
	MaxAge     time.Duration
}

// ScopeFromContext returns the client scope assigned by [Scope].
func ScopeFromContext(ctx context.Context) (string, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(string)
	return scope, ok && scope != ""
}

// WithScope returns a copy of ctx carrying scope.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// Scope reads the client scope cookie, issuing a new random scope when the
// cookie is missing or malformed.
func Scope(opts ScopeOptions) func(http.Handler) http.Handler {
	name := opts.CookieName
	if name == "" {
		name = DefaultScopeCookie
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := ""
			if c, err := r.Cookie(name); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					scope = id.String()
				}
			}

			if scope == "" {
				scope = uuid.NewString()
				cookie := &http.Cookie{
					Name:     name,
					Value:    scope,
					Path:     "/",
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				}
				if opts.MaxAge > 0 {
					cookie.MaxAge = int(opts.MaxAge / time.Second)
				}
				http.SetCookie(w, cookie)
			}

			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}
