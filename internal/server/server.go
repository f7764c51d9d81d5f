package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bookrec/internal/app"
	"bookrec/internal/ratelimit"
	"bookrec/internal/usertoken"
	"bookrec/internal/util"
	"bookrec/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	Limiter       *ratelimit.FixedWindowLimiter
}

// Server exposes the recommendation, title-search, and ledger endpoints.
type Server struct {
	app           *app.App
	tokenVerifier *usertoken.Verifier
	limiter       *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		limiter:       cfg.Limiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with shared middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/recommend", s.handleRecommend)
	s.mux.HandleFunc("/titles/search", s.handleTitleSearch)
	s.mux.HandleFunc("/read-books", s.handleReadBooks)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/admin/reindex", s.handleReindex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recommendRequest struct {
	Query    string `json:"query"`
	Profile  string `json:"profile"`
	Language string `json:"language"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req recommendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	user := s.optionalUser(r)
	profileInput := req.Profile
	if profileInput == "" && user.Profile != "" {
		profileInput = string(user.Profile)
	}
	profile, _ := domain.ParseProfile(profileInput)
	if profileInput != "" && profile == "" {
		writeError(w, http.StatusBadRequest, "unknown profile: "+profileInput)
		return
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = user.Language
	}

	rec, err := s.app.Recommend(r.Context(), user, domain.RecommendationQuery{
		RawText:  req.Query,
		Profile:  profile,
		Language: language,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTitleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query().Get("q")
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	titles, total, err := s.app.SearchTitles(q, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"titles": titles, "total": total})
}

type readBookRequest struct {
	Username  string `json:"username"`
	BookTitle string `json:"bookTitle"`
	Rating    *int   `json:"rating"`
}

func (s *Server) handleReadBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req readBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.MarkRead(req.Username, req.BookTitle, req.Rating); err != nil {
			writeDetail(w, statusForError(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		username := r.URL.Query().Get("username")
		if strings.TrimSpace(username) == "" {
			writeDetail(w, http.StatusBadRequest, "username is required")
			return
		}
		books, err := s.app.ListReadBooks(username)
		if err != nil {
			writeDetail(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"books": books})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	username := r.URL.Query().Get("username")
	if strings.TrimSpace(username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.app.ListHistory(username, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		job, err := s.app.EnqueueReindex(r.Context(), "admin request")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		job, ok, err := s.app.ReindexJob(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	default:
		methodNotAllowed(w)
	}
}

// optionalUser resolves the bearer token when present. Anonymous requests
// proceed with a zero profile; invalid tokens are treated as anonymous
// rather than rejected, since recommendation does not require login.
func (s *Server) optionalUser(r *http.Request) domain.UserProfile {
	if s.tokenVerifier == nil {
		return domain.UserProfile{}
	}
	token, ok := bearerToken(r)
	if !ok {
		return domain.UserProfile{}
	}
	user, err := s.tokenVerifier.Verify(token)
	if err != nil {
		return domain.UserProfile{}
	}
	return user
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSanitizationRejected):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoMatchFound), errors.Is(err, domain.ErrNoSafeMatch):
		return http.StatusNotFound
	case errors.Is(err, app.ErrUserNotFound), errors.Is(err, app.ErrBookNotInCatalog):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func kindForError(err error) string {
	switch {
	case errors.Is(err, app.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, app.ErrBookNotInCatalog):
		return "book_not_in_catalog"
	default:
		return domain.Kind(err)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError reports a failure from the core with its stable kind so
// clients can branch without parsing messages.
func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]string{
		"error": err.Error(),
		"kind":  kindForError(err),
	})
}

// writeDetail matches the read-book endpoints' error contract.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
