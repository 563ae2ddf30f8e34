package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/metrics"
	"github.com/krzysztofKolodziej/idea-match/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler manages accounts and sessions.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → POST /api/register
//   - HandleLogin          → POST /api/login
//   - HandleLogout         → POST /api/logout (bearer)
//   - HandleMe             → GET  /api/account/me (bearer)
//   - HandleGitHubLogin    → GET  /auth/github/login
//   - HandleGitHubCallback → GET  /auth/github/callback
//
// github is nil when GitHub sign-in is not configured; the server then does
// not mount the /auth/github routes.
type AuthHandler struct {
	users  *service.UserService
	github *auth.GitHubProvider
	logger *slog.Logger
}

func NewAuthHandler(users *service.UserService, github *auth.GitHubProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		github: github,
		logger: logger,
	}
}

// TokenResponse is the body returned after a successful sign-in.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newTokenResponse(res *service.AuthResult) TokenResponse {
	return TokenResponse{
		Token:     res.Token,
		TokenType: res.TokenType,
		ExpiresAt: res.ExpiresAt.UTC(),
	}
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Login(r.Context(), input)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			metrics.LoginAttempts.WithLabelValues("password", "failure").Inc()
		}
		writeError(w, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("password", "success").Inc()

	writeJSON(w, http.StatusOK, newTokenResponse(res))
}

// HandleLogout revokes the bearer token the request was made with. The token
// stays on the blacklist until it would have expired anyway.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.users.Logout(r.Context(), claims); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	user, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and sent to
// GitHub; HandleGitHubCallback only accepts a callback whose state matches.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the GitHub sign-in.
//
// FLOW:
//  1. Check the state against the cookie
//  2. Exchange the code for the GitHub profile
//  3. Sign in (or create) the linked account
//  4. Return the access token as JSON
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/auth/github",
		MaxAge: -1,
	})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		metrics.LoginAttempts.WithLabelValues("github", "failure").Inc()
		writeError(w, apperror.Unauthorized("GitHub authorization was denied"))
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		metrics.LoginAttempts.WithLabelValues("github", "failure").Inc()
		writeError(w, apperror.Unauthorized("GitHub authentication failed"))
		return
	}

	res, err := h.users.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("github", "success").Inc()

	writeJSON(w, http.StatusOK, newTokenResponse(res))
}
