package middleware

import (
	"net/http"

	goOTP "github.com/MrEthical07/goOTP"
)

// Guard redirects requests the engine does not allow. It must run after
// [Scope]; without a scope the request is treated as anonymous.
func Guard(engine *goOTP.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			scope, _ := ScopeFromContext(r.Context())
			decision := engine.Guard(r.Context(), scope, r.URL.Path)
			if !decision.Allow {
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
