package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

// AuthHandler exposes the identity behind the current credential
type AuthHandler struct {
	gate pastevent.CredentialGate
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(gate pastevent.CredentialGate) *AuthHandler {
	return &AuthHandler{gate: gate}
}

// Routes returns the routes mounted under /api/auth
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(RequireCredential(h.gate)).Get("/me", h.Me)
	return r
}

// Me returns the authenticated identity
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := pastevent.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, (pastevent.Verification{Kind: pastevent.CredentialMissing}).Err())
		return
	}
	render.JSON(w, r, identity)
}
