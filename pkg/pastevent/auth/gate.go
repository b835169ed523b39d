package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

// DefaultLookupTimeout bounds the user directory lookup of one verification.
const DefaultLookupTimeout = 2 * time.Second

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 7 * 24 * time.Hour

// CookieName is the cookie a browser session carries its token in.
const CookieName = "jwt"

// ErrRoleMismatch indicates an authenticated user lacking the required role.
var ErrRoleMismatch = errors.New("user lacks required role")

// JWTGate verifies HS256 bearer tokens and resolves their subject through a
// UserDirectory.
type JWTGate struct {
	ja            *jwtauth.JWTAuth
	users         UserDirectory
	lookupTimeout time.Duration
	requiredRole  string
}

// GateOption configures a JWTGate
type GateOption func(*JWTGate)

// WithLookupTimeout bounds the directory lookup
func WithLookupTimeout(d time.Duration) GateOption {
	return func(g *JWTGate) {
		if d > 0 {
			g.lookupTimeout = d
		}
	}
}

// WithRequiredRole rejects identities whose role differs
func WithRequiredRole(role string) GateOption {
	return func(g *JWTGate) {
		g.requiredRole = role
	}
}

// NewJWTAuth returns the HS256 signer/verifier shared by the gate and issuer.
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// NewJWTGate creates a gate over ja and users
func NewJWTGate(ja *jwtauth.JWTAuth, users UserDirectory, opts ...GateOption) (*JWTGate, error) {
	if ja == nil {
		return nil, errors.New("jwt auth is required")
	}
	if users == nil {
		return nil, errors.New("user directory is required")
	}
	g := &JWTGate{ja: ja, users: users, lookupTimeout: DefaultLookupTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Verify classifies credential. It never blocks longer than the lookup
// timeout plus token decoding.
func (g *JWTGate) Verify(ctx context.Context, credential string) pastevent.Verification {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return pastevent.Verification{Kind: pastevent.CredentialMissing}
	}

	token, err := jwtauth.VerifyToken(g.ja, credential)
	if err != nil {
		return invalid(fmt.Errorf("verify token: %w", err))
	}
	if token == nil {
		return invalid(errors.New("empty token"))
	}

	userID, err := uuid.Parse(token.Subject())
	if err != nil {
		return invalid(fmt.Errorf("token subject: %w", err))
	}

	identity, err := g.lookup(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return invalid(err)
	case err != nil:
		return pastevent.Verification{
			Kind:   pastevent.CredentialUnavailable,
			Reason: fmt.Errorf("lookup user: %w", err),
		}
	case identity == nil:
		return invalid(ErrUserNotFound)
	}

	if g.requiredRole != "" && identity.Role != g.requiredRole {
		return invalid(ErrRoleMismatch)
	}

	return pastevent.Verification{Kind: pastevent.CredentialAuthenticated, Identity: identity}
}

type lookupResult struct {
	identity *pastevent.Identity
	err      error
}

// lookup bounds the directory call by the lookup timeout even when the
// directory ignores its context. A late result is dropped.
func (g *JWTGate) lookup(ctx context.Context, userID uuid.UUID) (*pastevent.Identity, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		identity, err := g.users.LookupUser(lookupCtx, userID)
		done <- lookupResult{identity: identity, err: err}
	}()

	select {
	case res := <-done:
		return res.identity, res.err
	case <-lookupCtx.Done():
		return nil, lookupCtx.Err()
	}
}

func invalid(reason error) pastevent.Verification {
	return pastevent.Verification{Kind: pastevent.CredentialInvalid, Reason: reason}
}

// CredentialFromRequest extracts the credential material of a request. A
// bearer token wins over the session cookie. An Authorization header that is
// not a bearer token is returned as is, so it verifies as invalid rather than
// missing.
func CredentialFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		if token := jwtauth.TokenFromHeader(r); token != "" {
			return token
		}
		return header
	}
	return jwtauth.TokenFromCookie(r)
}

// Issuer mints tokens for known identities. Login flows live elsewhere.
type Issuer struct {
	ja  *jwtauth.JWTAuth
	ttl time.Duration
}

// NewIssuer creates an issuer. A zero ttl means DefaultTokenTTL.
func NewIssuer(ja *jwtauth.JWTAuth, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{ja: ja, ttl: ttl}
}

// Issue returns a signed token for identity.
func (i *Issuer) Issue(identity pastevent.Identity) (string, error) {
	claims := map[string]interface{}{
		"sub":   identity.UserID.String(),
		"email": identity.Email,
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, i.ttl)

	_, tokenString, err := i.ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return tokenString, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
