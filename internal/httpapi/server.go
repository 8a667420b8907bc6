// Package httpapi exposes the engine over HTTP under /api/users, using a chi
// router. Handlers decode a request struct, call one engine operation and
// encode a response struct; errors render as {"error": code, "message": text}.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 4 << 20

// LogoStore keeps supplier company logos. *media.S3LogoStore implements it.
type LogoStore interface {
	PutLogo(ctx context.Context, owner string, r io.Reader) (string, error)
	DeleteLogo(ctx context.Context, key string) error
}

// Options wires a Server. Engine is required.
type Options struct {
	Engine         *boxumco.Engine
	Logos          LogoStore
	Logger         *zap.Logger
	Metrics        http.Handler
	AllowedOrigins []string
	MaxBodyBytes   int64
	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is the HTTP front of the engine.
type Server struct {
	engine   *boxumco.Engine
	logos    LogoStore
	logger   *zap.Logger
	metrics  http.Handler
	ready    func(ctx context.Context) error
	maxBody  int64
	origins  []string
	redirect confirmRedirect
	router   chi.Router
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("httpapi: engine required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	redirect, err := newConfirmRedirect(opts.Engine.Config().EmailVerification.RedirectURL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:   opts.Engine,
		logos:    opts.Logos,
		logger:   logger.Named("http"),
		metrics:  opts.Metrics,
		ready:    opts.Ready,
		maxBody:  maxBody,
		origins:  opts.AllowedOrigins,
		redirect: redirect,
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(requestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/users", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/registration/client", s.handleRegisterClient)
			r.Post("/registration/supplier", s.handleRegisterSupplier)
			r.Get("/registration/account-confirm-email", s.handleConfirmEmail)
			r.Post("/registration/resend-email", s.handleResendEmail)
			r.Post("/login", s.handleLogin)
			r.Post("/mfa-verify", s.handleMFAVerify)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(s.engine))
				r.Get("/mfa/enable", s.handleMFAEnable)
				r.Post("/mfa/confirm", s.handleMFAConfirm)
				r.Post("/mfa/disable", s.handleMFADisable)
				r.Get("/mfa/status", s.handleMFAStatus)
				r.Post("/password/change", s.handleChangePassword)
				r.Get("/user", s.handleUserDetails)
			})
		})

		r.Post("/token/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Put("/user/update", s.handleUpdateProfile)
			r.Delete("/user/delete", s.handleDeleteAccount)
		})
	})

	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// requestMetadata copies the client address and user agent into the context
// for audit events. RealIP has already rewritten RemoteAddr.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := boxumco.WithRequestOrigin(r.Context(), boxumco.RequestOrigin{
			IP:        clientIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
