package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const claimsKey contextKey = "claims"

// Authenticator validates bearer tokens on incoming requests.
//
// MIDDLEWARE PATTERN:
// RequireAuth and OptionalAuth return func(http.Handler) http.Handler, the
// shape chi's r.Use and r.With accept. Validated claims are stored in the
// request context, where handlers read them with UserIDFromContext.
type Authenticator struct {
	tokens    *TokenService
	blacklist Blacklist
	logger    *slog.Logger
}

func NewAuthenticator(tokens *TokenService, blacklist Blacklist, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, blacklist: blacklist, logger: logger}
}

// RequireAuth rejects the request with 401 unless it carries a valid,
// non-blacklisted "Authorization: Bearer <token>" header.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authenticate(r)
		if err != nil {
			a.logger.Debug("authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// OptionalAuth attaches claims when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := a.authenticate(r); err == nil {
			r = r.WithContext(withClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*TokenClaims, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := a.blacklist.Contains(r.Context(), claims.ID)
	if err != nil {
		// An unreadable blacklist rejects the request.
		a.logger.Error("blacklist lookup failed", slog.String("error", err.Error()))
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func withClaims(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims RequireAuth or OptionalAuth stored.
func ClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*TokenClaims)
	return c, ok && c != nil
}

// UserIDFromContext returns the authenticated user's ID.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, false
	}
	return c.UserID, true
}

// writeUnauthorized writes the same JSON error shape the handlers use.
// It is duplicated here because handler imports auth, not the other way.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="idea-match"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
}
