// Package server exposes the sorter over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/internal/config"
	"github.com/menta2k/waste-sorter/pkg/analyzer"
	"github.com/menta2k/waste-sorter/pkg/sorter"
	"github.com/menta2k/waste-sorter/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Server wires the sorter, the optional document store and the upload
// analyzer to HTTP routes.
type Server struct {
	cfg      config.ServerConfig
	sorter   *sorter.Sorter
	store    *store.Store
	analyzer *analyzer.ImageAnalyzer
	logger   *zap.Logger
}

// New creates a Server. st may be nil, in which case the /api/items routes
// answer 503.
func New(cfg config.ServerConfig, s *sorter.Sorter, st *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ac := analyzer.DefaultConfig()
	if cfg.MaxUploadBytes > 0 {
		ac.MaxBytes = cfg.MaxUploadBytes
	}
	return &Server{
		cfg:      cfg,
		sorter:   s,
		store:    st,
		analyzer: analyzer.NewWithConfig(ac),
		logger:   logger,
	}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/suggest", s.suggest)
		r.Get("/search", s.search)
		r.Post("/material", s.material)
		r.Get("/categories", s.categories)
		r.Post("/classify/image", s.classifyImage)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Post("/", s.addItem)
			r.Get("/search", s.searchItems)
		})
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.cfg.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
