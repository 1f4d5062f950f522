// Package server wires diodb.DB into an HTTP surface: a small REST API
// over keys, a Prometheus metrics endpoint, a WebSocket change feed,
// and an optional GraphQL API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/mnohosten/diodb/pkg/auth"
	"github.com/mnohosten/diodb/pkg/diodb"
	gql "github.com/mnohosten/diodb/pkg/server/gql"
	"github.com/mnohosten/diodb/pkg/server/handlers"
	"github.com/mnohosten/diodb/pkg/metrics"
)

// Server is the HTTP front end for a running diodb instance.
type Server struct {
	config       *Config
	db           *diodb.DB
	router       *chi.Mux
	httpSrv      *http.Server
	startTime    time.Time
	collector    *metrics.Collector
	promExporter *metrics.PrometheusExporter
	log          *zap.SugaredLogger
}

// New opens the database described by config and builds the router
// and HTTP server around it. If New fails after the database has been
// opened, it closes the database before returning the error; call
// Shutdown only once New returns successfully.
func New(config *Config, log *zap.SugaredLogger) (*Server, error) {
	if config.EnableTLS {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but certificate or key file not specified")
		}
		if _, err := os.Stat(config.TLSCertFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS certificate file not found: %s", config.TLSCertFile)
		}
		if _, err := os.Stat(config.TLSKeyFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS key file not found: %s", config.TLSKeyFile)
		}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	collector := metrics.NewCollector()
	promExporter := metrics.NewPrometheusExporter(collector)

	db, err := diodb.Open(diodb.Config{
		DBDirectory:          config.DataDir,
		BackgroundTaskMinGap: config.BackgroundTaskMinGap,
		NumWorkerThreads:     config.NumWorkerThreads,
		IndexOffsetBytes:     config.IndexOffsetBytes,
		Logger:               log,
		OnRoll:               collector.RecordRoll,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	srv := &Server{
		config:       config,
		db:           db,
		router:       chi.NewRouter(),
		startTime:    time.Now(),
		collector:    collector,
		promExporter: promExporter,
		log:          log,
	}

	var keyring *auth.Keyring
	if config.APIKey != "" {
		keyring, err = auth.NewKeyring(config.APIKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to build auth keyring: %w", err)
		}
	}

	srv.setupMiddleware(keyring)
	srv.setupRoutes()

	if config.EnableGraphQL {
		if err := srv.setupGraphQLRoutes(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to setup GraphQL routes: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return srv, nil
}

func (s *Server) setupMiddleware(keyring *auth.Keyring) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(gzhttp.GzipHandler)
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(auth.Middleware(keyring))
}

func (s *Server) setupRoutes() {
	h := handlers.New(s.db, s.collector)

	s.router.Get("/healthz", s.jsonContentType(h.Health(s.startTime)))
	s.router.Get("/metrics", s.handlePrometheusMetrics)

	handlers.SetupWatchRoute(s.router, h)

	s.router.Route("/keys/{key}", func(r chi.Router) {
		r.Put("/", s.jsonContentType(h.PutKey))
		r.Get("/", s.jsonContentType(h.GetKey))
		r.Head("/", h.HeadKey)
		r.Delete("/", s.jsonContentType(h.DeleteKey))
	})
}

func (s *Server) setupGraphQLRoutes() error {
	handler, err := gql.NewHandler(s.db)
	if err != nil {
		return err
	}
	s.router.Post("/graphql", handler.ServeHTTP)
	s.router.Get("/graphiql", gql.GraphiQLHandler())
	return nil
}

func (s *Server) jsonContentType(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.config.AllowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.config.AllowedHeaders, ", "))
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.promExporter.WriteMetrics(w); err != nil {
		http.Error(w, fmt.Sprintf("error writing metrics: %v", err), http.StatusInternalServerError)
	}
}

// Start runs the HTTP server until it errors or the process receives
// an interrupt or SIGTERM, at which point it shuts down gracefully.
func (s *Server) Start() error {
	protocol := "http"
	if s.config.EnableTLS {
		protocol = "https"
	}
	s.log.Infow("server starting",
		"addr", fmt.Sprintf("%s://%s:%d", protocol, s.config.Host, s.config.Port),
		"data_dir", s.config.DataDir,
	)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpSrv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		s.log.Infow("received signal, shutting down", "signal", sig.String())
		return s.Shutdown()
	}
}

// GetDatabase returns the underlying database handle.
func (s *Server) GetDatabase() *diodb.DB { return s.db }

// GetMetricsCollector returns the metrics collector backing /metrics.
func (s *Server) GetMetricsCollector() *metrics.Collector { return s.collector }

// Shutdown stops serving HTTP, then closes the database.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Errorw("http server shutdown error", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorw("database close error", "error", err)
		return err
	}
	return nil
}
