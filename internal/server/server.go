// Package server provides the HTTP REST API for the internship portal.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/catalog"
	"github.com/jonathan/internship-portal/internal/config"
	"github.com/jonathan/internship-portal/internal/events"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/logging"
	"github.com/jonathan/internship-portal/internal/metrics"
	"github.com/jonathan/internship-portal/internal/server/middleware"
	"github.com/jonathan/internship-portal/internal/server/ratelimit"
	"github.com/jonathan/internship-portal/internal/storage"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/sirupsen/logrus"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	store       Store
	bus         events.Bus
	lifecycle   *lifecycle.Service
	catalog     *catalog.Service
	documents   *storage.Documents
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	authHandler *AuthHandler
	validator   *validator.Validate
	log         *logrus.Logger
	corsOrigin  string
	now         func() time.Time
}

// Config holds server configuration
type Config struct {
	Port              int
	CORSAllowedOrigin string
	JWT               *config.JWTConfig
	Password          *config.PasswordConfig
}

// Deps are the collaborators the server is built from. Documents and
// Limiter are optional: without Documents uploads answer 503, without
// Limiter requests are not rate limited.
type Deps struct {
	Store     Store
	Bus       events.Bus
	Documents *storage.Documents
	Limiter   *ratelimit.Limiter
	Log       *logrus.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if cfg.JWT == nil || cfg.Password == nil {
		return nil, fmt.Errorf("server requires JWT and password configuration")
	}
	log := deps.Log
	if log == nil {
		log = logrus.New()
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewLocalBus()
	}
	origin := cfg.CORSAllowedOrigin
	if origin == "" {
		origin = "*"
	}

	s := &Server{
		store:       deps.Store,
		bus:         bus,
		lifecycle:   lifecycle.NewService(deps.Store, bus, log),
		catalog:     catalog.NewService(deps.Store, log),
		documents:   deps.Documents,
		rateLimiter: deps.Limiter,
		jwtService:  NewJWTService(cfg.JWT),
		validator:   validator.New(),
		log:         log,
		corsOrigin:  origin,
		now:         time.Now,
	}
	s.authHandler = NewAuthHandler(NewUserService(deps.Store, cfg.Password), s.jwtService)

	mux := http.NewServeMux()
	s.routes(mux)

	s.handler = metrics.InstrumentHandler(s.withRateLimit(logging.Middleware(log)(s.withCORS(mux))))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // view-state streams stay open
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	tokens := s.jwtService.AsTokenValidator()
	authed := middleware.AuthMiddleware(tokens)
	optional := middleware.OptionalAuth(tokens)
	as := func(role types.Role, h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(string(role))(h))
	}
	student := func(h http.HandlerFunc) http.Handler { return as(types.RoleStudent, h) }
	company := func(h http.HandlerFunc) http.Handler { return as(types.RoleCompany, h) }
	professor := func(h http.HandlerFunc) http.Handler { return as(types.RoleProfessor, h) }

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /v1/auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", s.authHandler.Login)
	mux.HandleFunc("GET /v1/programs", s.handleListPrograms)
	mux.Handle("GET /v1/postings/{id}", optional(http.HandlerFunc(s.handleGetPosting)))

	// Any authenticated account
	mux.Handle("GET /v1/me", authed(http.HandlerFunc(s.authHandler.Me)))
	mux.Handle("PUT /v1/auth/password", authed(http.HandlerFunc(s.authHandler.UpdatePassword)))
	mux.Handle("GET /v1/me/profile", authed(http.HandlerFunc(s.handleGetProfile)))
	mux.Handle("PUT /v1/me/avatar", authed(http.HandlerFunc(s.handleUploadAvatar)))
	mux.Handle("DELETE /v1/me/avatar", authed(http.HandlerFunc(s.handleDeleteAvatar)))

	// Student
	mux.Handle("GET /v1/postings", student(s.handleSearchPostings))
	mux.Handle("POST /v1/postings/{id}/apply", student(s.handleApply))
	mux.Handle("PUT /v1/postings/{id}/favorite", student(s.handleMarker(markerFavorite, true)))
	mux.Handle("DELETE /v1/postings/{id}/favorite", student(s.handleMarker(markerFavorite, false)))
	mux.Handle("PUT /v1/postings/{id}/hidden", student(s.handleMarker(markerHidden, true)))
	mux.Handle("DELETE /v1/postings/{id}/hidden", student(s.handleMarker(markerHidden, false)))
	mux.Handle("GET /v1/postings/{id}/view-state", student(s.handleViewState))
	mux.Handle("GET /v1/postings/{id}/view-state/stream", student(s.handleViewStateStream))
	mux.Handle("GET /v1/me/dashboard", student(s.handleStudentDashboard))
	mux.Handle("GET /v1/me/offers", student(s.handleListOffers))
	mux.Handle("GET /v1/me/favorites", student(s.handleMarkedPostings(markerFavorite)))
	mux.Handle("GET /v1/me/hidden", student(s.handleMarkedPostings(markerHidden)))
	mux.Handle("GET /v1/me/notifications", student(s.handleListNotifications))
	mux.Handle("POST /v1/me/notifications/{id}/read", student(s.handleMarkNotificationRead))
	mux.Handle("POST /v1/applications/{id}/{action}", student(s.handleStudentDecision))
	mux.Handle("PUT /v1/me/cv", student(s.handleUploadCV))
	mux.Handle("DELETE /v1/me/cv", student(s.handleDeleteCV))

	// Company
	mux.Handle("GET /v1/company", company(s.handleGetCompany))
	mux.Handle("PUT /v1/company", company(s.handleUpdateCompany))
	mux.Handle("PUT /v1/company/logo", company(s.handleUploadLogo))
	mux.Handle("GET /v1/company/dashboard", company(s.handleCompanyDashboard))
	mux.Handle("GET /v1/company/postings", company(s.handleListCompanyPostings))
	mux.Handle("POST /v1/company/postings", company(s.handleCreatePosting))
	mux.Handle("PATCH /v1/company/postings/{id}/status", company(s.handleUpdatePostingStatus))
	mux.Handle("GET /v1/company/applications", company(s.handleListCompanyApplications))
	mux.Handle("POST /v1/company/applications/{id}/{action}", company(s.handleCompanyDecision))

	// Professor
	mux.Handle("PUT /v1/me/professor", professor(s.handleUpdateProfessorProfile))
	mux.Handle("GET /v1/groups", professor(s.handleListGroups))
	mux.Handle("POST /v1/groups", professor(s.handleCreateGroup))
	mux.Handle("PATCH /v1/groups/{id}", professor(s.handleUpdateGroup))
	mux.Handle("DELETE /v1/groups/{id}", professor(s.handleDeleteGroup))
	mux.Handle("GET /v1/groups/{id}/members", professor(s.handleListGroupMembers))
	mux.Handle("POST /v1/groups/{id}/members", professor(s.handleAddGroupMember))
	mux.Handle("DELETE /v1/groups/{id}/members/{student_id}", professor(s.handleRemoveGroupMember))
	mux.Handle("GET /v1/students/search", professor(s.handleSearchStudents))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(r.Context(), s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports whether the database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// jsonResponse writes a JSON response and logs encoding failures
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	if err := writeJSON(w, status, data); err != nil {
		s.log.WithError(err).Warn("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, errorBody(message))
}

// decode reads a JSON body into v and validates it. Errors are *ErrValidation.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	if err := s.validator.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return &ErrValidation{Field: ve[0].Field(), Message: ve[0].Tag()}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// pathID parses the UUID path parameter name.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// caller returns the authenticated account id. Routes are wrapped in
// AuthMiddleware, so a missing id means the middleware was bypassed.
func caller(r *http.Request) (uuid.UUID, error) {
	id, err := middleware.GetUserID(r)
	if err != nil {
		return uuid.Nil, &lifecycle.ErrUnauthenticated{}
	}
	return id, nil
}

// extractClientID extracts the client identifier from the request.
// It uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds())
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.log.WithFields(logrus.Fields{
		"client": s.extractClientID(r),
		"path":   r.URL.Path,
		"limit":  info.Limit,
	}).Warn("rate limit exceeded")

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
