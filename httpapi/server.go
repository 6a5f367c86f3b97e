package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/middleware"
)

// Server exposes the engine over JSON/HTTP.
type Server struct {
	engine     *goIdentity.Engine
	opts       Options
	logger     *zap.Logger
	sessionTTL time.Duration
	router     *mux.Router
	handler    http.Handler
}

// New wires routes, CORS and request middleware. A nil logger is replaced
// with zap.NewNop.
func New(engine *goIdentity.Engine, opts Options, logger *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("httpapi: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions().MaxBodyBytes
	}

	s := &Server{
		engine:     engine,
		opts:       opts,
		logger:     logger.Named("http"),
		sessionTTL: engine.Config().Session.TTL,
		router:     mux.NewRouter(),
	}
	if err := s.routes(); err != nil {
		return nil, err
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	s.handler = c.Handler(s.router)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server for Addr with the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
	}
}

func (s *Server) routes() error {
	r := s.router
	r.Use(s.recoverMiddleware, s.logMiddleware, middleware.ClientMetadata(s.opts.TrustProxy))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.ExposeMetrics {
		h, err := prometheus.Handler(s.engine)
		if err != nil {
			return err
		}
		r.Handle("/metrics", h).Methods(http.MethodGet)
	}

	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)

	requireAccess := middleware.RequireAccess(s.engine)
	auth.Handle("/logout", requireAccess(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
	auth.Handle("/resend-verification", requireAccess(http.HandlerFunc(s.handleResendVerification))).Methods(http.MethodPost)
	auth.Handle("/me", requireAccess(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "not_found", Message: "route not found"}})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{Kind: "method_not_allowed", Message: "method not allowed"}})
	})
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := zap.DebugLevel
		if rec.status >= http.StatusInternalServerError {
			level = zap.WarnLevel
		}
		if ce := s.logger.Check(level, "request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("handler panic",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.Stack("stack"),
				)
				respondKind(w, goIdentity.KindInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func zapRequest(r *http.Request, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
}
