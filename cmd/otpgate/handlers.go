package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/middleware"
	"github.com/MrEthical07/goOTP/session"
	"github.com/gorilla/mux"
)

type api struct {
	engine *goOTP.Engine
	logger *slog.Logger
}

func newRouter(engine *goOTP.Engine, cfg serverConfig, metrics http.Handler, logger *slog.Logger) *mux.Router {
	a := &api{engine: engine, logger: logger}

	r := mux.NewRouter()
	r.Handle("/metrics", metrics).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(middleware.Scope(middleware.ScopeOptions{Secure: cfg.SecureCookies}), middleware.Client(cfg.TrustProxy))
	auth.HandleFunc("/login", a.requestCode).Methods(http.MethodPost)
	auth.HandleFunc("/verify", a.verifyCode).Methods(http.MethodPost)
	auth.HandleFunc("/resend", a.resendCode).Methods(http.MethodPost)
	auth.HandleFunc("/password", a.passwordLogin).Methods(http.MethodPost)
	auth.HandleFunc("/register", a.register).Methods(http.MethodPost)
	auth.HandleFunc("/logout", a.logout).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", a.refresh).Methods(http.MethodPost)
	auth.HandleFunc("/state", a.state).Methods(http.MethodGet)

	dash := r.PathPrefix("/dashboard").Subrouter()
	dash.Use(middleware.Scope(middleware.ScopeOptions{Secure: cfg.SecureCookies}), middleware.Client(cfg.TrustProxy), middleware.Guard(engine))
	dash.HandleFunc("/profile", a.profile).Methods(http.MethodGet)
	dash.HandleFunc("/profile", a.updateProfile).Methods(http.MethodPut)
	dash.HandleFunc("/sessions", a.sessions).Methods(http.MethodGet)
	dash.HandleFunc("/sessions/terminate-others", a.terminateOthers).Methods(http.MethodPost)
	dash.HandleFunc("/sessions/{id}", a.terminate).Methods(http.MethodDelete)

	return r
}

/*
====================================
ONE-TIME CODE
====================================
*/

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SessionID string       `json:"sessionId"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      session.User `json:"user"`
	Initials  string       `json:"initials"`
}

type stateResponse struct {
	State         goOTP.State      `json:"state"`
	Authenticated bool             `json:"authenticated"`
	Challenge     *goOTP.Challenge `json:"challenge,omitempty"`
}

func (a *api) requestCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	if err := f.RequestChallenge(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, r, f, http.StatusAccepted)
}

func (a *api) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	res := f.VerifyChallengeResult(r.Context(), req.Email, req.Code)
	if !res.IsOk() {
		a.writeError(w, r, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(res.Session))
}

func (a *api) resendCode(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	if err := f.ResendChallenge(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, r, f, http.StatusAccepted)
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	a.writeState(w, r, f, http.StatusOK)
}

/*
====================================
PASSWORD / SESSION
====================================
*/

func (a *api) passwordLogin(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	sess, err := f.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req session.Registration
	if !decode(w, r, &req) {
		return
	}
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	user, err := f.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	if err := f.Logout(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	sess, err := f.Refresh(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

/*
====================================
DASHBOARD
====================================
*/

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	user, err := f.Profile(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *api) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req session.ProfileUpdate
	if !decode(w, r, &req) {
		return
	}
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	user, err := f.UpdateProfile(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *api) sessions(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	list, err := f.Sessions(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (a *api) terminate(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	if err := f.TerminateSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) terminateOthers(w http.ResponseWriter, r *http.Request) {
	f, ok := a.flow(w, r)
	if !ok {
		return
	}
	n, err := f.TerminateOtherSessions(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"terminated": n})
}

/*
====================================
HELPERS
====================================
*/

func (a *api) flow(w http.ResponseWriter, r *http.Request) (*goOTP.Flow, bool) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing_scope"})
		return nil, false
	}
	f, err := a.engine.Flow(r.Context(), scope)
	if err != nil {
		a.writeError(w, r, err)
		return nil, false
	}
	return f, true
}

func (a *api) writeState(w http.ResponseWriter, r *http.Request, f *goOTP.Flow, status int) {
	resp := stateResponse{
		State:         f.State(),
		Authenticated: f.IsAuthenticated(r.Context()),
	}
	if ch, ok := f.Challenge(); ok {
		resp.Challenge = &ch
	}
	writeJSON(w, status, resp)
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := goOTP.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		a.logger.WarnContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	resp := errorResponse{Error: kind.String(), Message: err.Error()}
	var verr *goOTP.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

func statusFor(kind goOTP.ErrorKind) int {
	switch kind {
	case goOTP.KindInvalidInput:
		return http.StatusBadRequest
	case goOTP.KindInvalidCode, goOTP.KindCredentialsRejected,
		goOTP.KindNotAuthenticated, goOTP.KindSessionExpired:
		return http.StatusUnauthorized
	case goOTP.KindAttemptsExhausted:
		return http.StatusForbidden
	case goOTP.KindNotFound:
		return http.StatusNotFound
	case goOTP.KindNoPendingCredential, goOTP.KindAccountExists,
		goOTP.KindConflict, goOTP.KindBusy:
		return http.StatusConflict
	case goOTP.KindCooldownActive, goOTP.KindRateLimited:
		return http.StatusTooManyRequests
	case goOTP.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt,
		User:      s.User,
		Initials:  s.User.Initials(),
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json", Message: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
