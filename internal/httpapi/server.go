// Package httpapi exposes the job substrate over HTTP: enqueueing subtitle
// jobs, polling status, fetching results and listing the video catalog.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"github.com/berios/subtitle-backend/internal/catalog"
	"github.com/berios/subtitle-backend/internal/jobs"
	"github.com/berios/subtitle-backend/internal/ratelimit"
	"github.com/berios/subtitle-backend/internal/session"
)

type Server struct {
	resolver *jobs.Resolver
	limiter  *ratelimit.Limiter
	sessions *session.Store
	catalog  *catalog.Cache

	defaultLanguage language.Tag

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithSessionStore enables session bookkeeping for requests carrying a
// session id.
func WithSessionStore(store *session.Store) Option {
	return func(s *Server) {
		s.sessions = store
	}
}

// WithCatalog enables the public video listing endpoint.
func WithCatalog(cache *catalog.Cache) Option {
	return func(s *Server) {
		s.catalog = cache
	}
}

// WithDefaultLanguage sets the translation target applied when a request does
// not name one.
func WithDefaultLanguage(tag language.Tag) Option {
	return func(s *Server) {
		s.defaultLanguage = tag
	}
}

func NewServer(resolver *jobs.Resolver, limiter *ratelimit.Limiter, opts ...Option) *Server {
	s := &Server{
		resolver:        resolver,
		limiter:         limiter,
		defaultLanguage: language.Und,
		mux:             http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/subtitles", s.handleEnqueue)
	s.mux.HandleFunc("/api/subtitles/", s.handleSubtitleByID)
	s.mux.HandleFunc("/api/videos", s.handleListVideos)
}
