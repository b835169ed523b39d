package api

import (
	"net/http"

	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// RequireCredential verifies the request credential and stores the identity
// in the request context. Unauthenticated requests never reach next.
func RequireCredential(gate pastevent.CredentialGate) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := gate.Verify(r.Context(), auth.CredentialFromRequest(r))
			if !v.Authenticated() {
				writeError(w, r, v.Err())
				return
			}
			next.ServeHTTP(w, r.WithContext(pastevent.WithIdentity(r.Context(), v.Identity)))
		})
	}
}
