// Package demochat is a small local chat application for pointing the probe
// at: a chat page plus a streaming chatbot API under /chatbot-api.
package demochat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raysh454/chatprobe/internal/logging"
)

// APIPath is where the page posts chat messages.
const APIPath = "/chatbot-api/api/chat"

// Server is the demo chat application.
type Server struct {
	cfg     Config
	logger  logging.Logger
	router  chi.Router
	limiter *clientLimiter
}

// NewServer creates a new demo chat server.
func NewServer(cfg Config, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.With(logging.Field{Key: "component", Value: "demochat"}),
		limiter: newClientLimiter(cfg.PerMinute, cfg.PerHour),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/chat", http.StatusFound)
	})
	r.Get("/chat", s.handleChatPage)

	r.Route("/chatbot-api", func(r chi.Router) {
		r.Use(s.cors)
		r.Post("/api/chat", s.handleChat)
		r.Options("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
	})
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("demo chat listening",
			logging.Field{Key: "url", Value: fmt.Sprintf("http://localhost%s/chat", addr)})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{Welcome: s.cfg.Welcome, Suggestions: s.cfg.Suggestions, APIPath: APIPath}
	if err := chatPage.Execute(w, data); err != nil {
		s.logger.Error("rendering chat page", logging.Err(err))
	}
}
