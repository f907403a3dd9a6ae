package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/MrEthical07/sessioncap"
	"github.com/MrEthical07/sessioncap/identity"
	"github.com/MrEthical07/sessioncap/metrics/export/prometheus"
	"github.com/MrEthical07/sessioncap/middleware"
	"github.com/MrEthical07/sessioncap/password"
	"github.com/MrEthical07/sessioncap/permission"
)

const refreshCookieName = "refreshToken"

type cookieConfig struct {
	secure bool
	maxAge time.Duration
}

// selfAssignableRoles are the roles a caller may request at sign-up.
var selfAssignableRoles = map[string]bool{
	permission.RoleUser:    true,
	permission.RoleCreator: true,
}

func (a *app) handler(corsOrigins []string) http.Handler {
	return newRouter(a.engine, a.posts, a.cookie, corsOrigins)
}

func newRouter(engine *sessioncap.Engine, posts identity.Posts, cookie cookieConfig, corsOrigins []string) http.Handler {
	h := &handlers{engine: engine, posts: posts, cookie: cookie}
	guard := middleware.Guard(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("GET /metrics", prometheus.Handler(engine))

	mux.HandleFunc("POST /auth/signup", h.signUp)
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.HandleFunc("POST /auth/logout", h.logout)
	mux.Handle("POST /auth/logout-all", guard(http.HandlerFunc(h.logoutAll)))
	mux.Handle("GET /auth/sessions", guard(http.HandlerFunc(h.listSessions)))

	mux.Handle("POST /posts", guard(
		middleware.RequireRoles(engine, permission.RoleCreator, permission.RoleAdmin)(http.HandlerFunc(h.createPost)),
	))
	mux.Handle("GET /posts/{id}", guard(
		middleware.RequireOwner(engine, middleware.PathPostID("id"))(http.HandlerFunc(h.getPost)),
	))

	var root http.Handler = middleware.ClientIP(mux)
	if len(corsOrigins) > 0 {
		root = cors.New(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler(root)
	}
	return root
}

type handlers struct {
	engine *sessioncap.Engine
	posts  identity.Posts
	cookie cookieConfig
}

type signUpRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
}

type userResponse struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var body signUpRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	for _, role := range body.Roles {
		if !selfAssignableRoles[role] {
			writeError(w, http.StatusForbidden, "role not assignable at sign-up")
			return
		}
	}

	u, err := h.engine.SignUp(r.Context(), sessioncap.SignUpRequest{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
		Roles:    body.Roles,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Roles: u.Roles})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	ID          int64  `json:"id"`
	AccessToken string `json:"accessToken"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.engine.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.setRefreshCookie(w, res.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{ID: res.UserID, AccessToken: res.AccessToken})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	res, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		if isUnauthorized(err) {
			h.clearRefreshCookie(w)
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{ID: res.UserID, AccessToken: res.AccessToken})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.engine.Logout(r.Context(), token)
	h.clearRefreshCookie(w)
	if err != nil && !errors.Is(err, sessioncap.ErrSessionNotFound) {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := sessioncap.PrincipalFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), p.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

type sessionResponse struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := sessioncap.PrincipalFromContext(r.Context())
	list, err := h.engine.ListSessions(r.Context(), p.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sessionResponse{ID: s.SessionID, CreatedAt: s.CreatedAt, LastUsedAt: s.LastUsedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

type postRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type postResponse struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"authorId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func toPostResponse(p identity.Post) postResponse {
	return postResponse{ID: p.ID, AuthorID: p.AuthorID, Title: p.Title, Body: p.Body, CreatedAt: p.CreatedAt}
}

func (h *handlers) createPost(w http.ResponseWriter, r *http.Request) {
	var body postRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	p, _ := sessioncap.PrincipalFromContext(r.Context())
	post, err := h.posts.Create(r.Context(), p.UserID, body.Title, body.Body)
	if err != nil {
		if errors.Is(err, sessioncap.ErrStorage) {
			writeEngineError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// getPost runs behind RequireOwner, so the ID is already known to be valid.
func (h *handlers) getPost(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.PathPostID("id")(r)
	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func refreshTokenFrom(r *http.Request) (string, bool) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (h *handlers) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(h.cookie.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// isUnauthorized groups the failures that share one 401 response.
func isUnauthorized(err error) bool {
	return errors.Is(err, sessioncap.ErrInvalidToken) ||
		errors.Is(err, sessioncap.ErrExpiredToken) ||
		errors.Is(err, sessioncap.ErrSessionNotFound)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case isUnauthorized(err):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, sessioncap.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, sessioncap.ErrLoginRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
	case errors.Is(err, sessioncap.ErrAccountExists):
		writeError(w, http.StatusConflict, "account already exists")
	case errors.Is(err, sessioncap.ErrInvalidSignUp), errors.Is(err, password.ErrTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sessioncap.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, sessioncap.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, sessioncap.ErrSignUpUnavailable):
		writeError(w, http.StatusNotImplemented, "sign-up disabled")
	default:
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
