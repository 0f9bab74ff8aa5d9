package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/recall/pkg/usecase"
)

// DefaultAddr keeps the API on the loopback interface; it serves one local user
const DefaultAddr = "127.0.0.1:7465"

// defaultMaxImageSize bounds uploaded screenshots
const defaultMaxImageSize = 32 << 20

type Server struct {
	router       *chi.Mux
	uc           *usecase.UseCases
	maxImageSize int64
}

type Options func(*Server)

// WithMaxImageSize limits the size of uploaded screenshots in bytes
func WithMaxImageSize(size int64) Options {
	return func(s *Server) {
		s.maxImageSize = size
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:       r,
		uc:           uc,
		maxImageSize: defaultMaxImageSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/captures", func(r chi.Router) {
			r.Post("/", s.createCapture)
			r.Get("/", s.listCaptures)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getCapture)
				r.Delete("/", s.deleteCapture)
				r.Post("/query", s.queryCapture)
				r.Post("/ask", s.askCapture)
			})
		})
		r.Post("/search", s.search)
		r.Get("/models", s.listModels)
		r.Get("/shortcuts", s.listShortcuts)
		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
