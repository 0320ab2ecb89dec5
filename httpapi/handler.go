package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/middleware"
	"github.com/rs/zerolog"
)

const refreshCookieName = "refresh_token"

// Engine is the part of [phoneauth.Engine] the API serves.
type Engine interface {
	RequestChallenge(ctx context.Context, in phoneauth.RequestChallengeInput) (*phoneauth.ChallengeReceipt, error)
	VerifyChallenge(ctx context.Context, phone string, purpose phoneauth.Purpose, code string) (*phoneauth.AuthResult, error)
	Login(ctx context.Context, phone, password string) (*phoneauth.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshAccessToken(ctx context.Context, refreshToken string) (*phoneauth.AuthResult, error)
	RequestPasswordReset(ctx context.Context, phone string) (*phoneauth.ChallengeReceipt, error)
	ResetPassword(ctx context.Context, phone, code, newPassword string) error
	VerifyAccess(ctx context.Context, accessToken string) (*phoneauth.Identity, error)
	UpdateProfile(ctx context.Context, identityID string, update phoneauth.ProfileUpdate) (*phoneauth.Identity, error)
}

// Options configures a Handler.
type Options struct {
	// TrustProxy reads the client address from X-Forwarded-For.
	TrustProxy bool
	// SecureCookies marks the refresh cookie Secure. Enable behind TLS.
	SecureCookies bool
	// RefreshTTL sets the refresh cookie Max-Age. Zero makes it a
	// session cookie.
	RefreshTTL time.Duration
	Logger     zerolog.Logger
}

// Handler serves the JSON API.
type Handler struct {
	engine  Engine
	opts    Options
	handler http.Handler
}

// New builds the API handler around engine.
func New(engine Engine, opts Options) *Handler {
	h := &Handler{engine: engine, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /v1/challenges", h.requestChallenge)
	mux.HandleFunc("POST /v1/challenges/verify", h.verifyChallenge)
	mux.HandleFunc("POST /v1/sessions", h.login)
	mux.HandleFunc("POST /v1/sessions/refresh", h.refresh)
	mux.HandleFunc("POST /v1/sessions/logout", h.logout)
	mux.HandleFunc("POST /v1/password-reset", h.requestPasswordReset)
	mux.HandleFunc("POST /v1/password-reset/confirm", h.confirmPasswordReset)

	guard := middleware.RequireAccess(engine)
	mux.Handle("GET /v1/me", guard(http.HandlerFunc(h.me)))
	mux.Handle("PATCH /v1/me", guard(http.HandlerFunc(h.updateMe)))

	h.handler = chain(mux,
		requestID(opts.Logger),
		accessLog,
		middleware.ClientContext(opts.TrustProxy),
	)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type challengeRequest struct {
	Phone    string `json:"phone"`
	Purpose  string `json:"purpose"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
}

func (h *Handler) requestChallenge(w http.ResponseWriter, r *http.Request) {
	var body challengeRequest
	if !decode(w, r, &body) {
		return
	}
	purpose := phoneauth.Purpose(strings.ToLower(strings.TrimSpace(body.Purpose)))
	if purpose == phoneauth.PurposePasswordReset {
		writeBadRequest(w, "Use /v1/password-reset for password reset codes.")
		return
	}

	receipt, err := h.engine.RequestChallenge(r.Context(), phoneauth.RequestChallengeInput{
		Phone:    body.Phone,
		Purpose:  purpose,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

type verifyRequest struct {
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}

func (h *Handler) verifyChallenge(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if !decode(w, r, &body) {
		return
	}
	purpose := phoneauth.Purpose(strings.ToLower(strings.TrimSpace(body.Purpose)))

	result, err := h.engine.VerifyChallenge(r.Context(), body.Phone, purpose, body.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, status, result)
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decode(w, r, &body) {
		return
	}

	result, err := h.engine.Login(r.Context(), body.Phone, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	result, err := h.engine.RefreshAccessToken(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.RefreshToken != "" {
		h.setRefreshCookie(w, result.RefreshToken)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	if err := h.engine.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type resetRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	if !decode(w, r, &body) {
		return
	}

	receipt, err := h.engine.RequestPasswordReset(r.Context(), body.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

type resetConfirmRequest struct {
	Phone       string `json:"phone"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body resetConfirmRequest
	if !decode(w, r, &body) {
		return
	}

	if err := h.engine.ResetPassword(r.Context(), body.Phone, body.Code, body.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, phoneauth.ErrInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

type profileRequest struct {
	DisplayName     *string `json:"display_name"`
	Email           *string `json:"email"`
	ShippingAddress *string `json:"shipping_address"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, phoneauth.ErrInvalidToken)
		return
	}

	var body profileRequest
	if !decode(w, r, &body) {
		return
	}

	updated, err := h.engine.UpdateProfile(r.Context(), identity.ID, phoneauth.ProfileUpdate{
		DisplayName:     body.DisplayName,
		Email:           body.Email,
		ShippingAddress: body.ShippingAddress,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// refreshToken takes the token from the JSON body, falling back to the
// cookie when the body is empty.
func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body refreshRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := jsonDecoder(r.Body)
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "The request body is not valid JSON.")
		return "", false
	}

	token := strings.TrimSpace(body.RefreshToken)
	if token == "" {
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		writeBadRequest(w, "A refresh token is required.")
		return "", false
	}
	return token, true
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/v1/sessions",
		MaxAge:   int(h.opts.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/v1/sessions",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
