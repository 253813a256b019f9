// Package httpapi exposes the data engine, the file subsystem and the job
// gateway over HTTP using chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// maxBodyBytes bounds any request body, uploads included.
	maxBodyBytes = 64 << 20
	// multipartMemory is kept in memory before parts spill to disk.
	multipartMemory = 32 << 20
)

type HTTPServer struct {
	address   string
	backend   *api.Backend
	logger    logging.Logger
	jwtSecret []byte
	timeout   time.Duration
}

func NewHTTPServer(a string, l logging.Logger, b *api.Backend, secretKey string, timeout time.Duration) *HTTPServer {
	return &HTTPServer{
		address:   a,
		backend:   b,
		logger:    l.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
		timeout:   timeout,
	}
}

// Handler builds the router.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.limitBody)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.withTimeout)
		r.Use(s.withCredential)

		r.Post("/data/upsert", s.handleUpsert)
		r.Post("/data/read", s.handleRead)
		r.Post("/files/{documentType}", s.handleStoreFiles)
		r.Get("/files/{documentType}", s.handleListFiles)
		r.Post("/jobs", s.handleDispatchJob)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
