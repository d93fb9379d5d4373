// Package httpapi exposes the relay over HTTP.
package httpapi

import (
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/core"
	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Service descriptor values.
const (
	ServiceName    = "XTTS Wolof Relay API"
	ServiceVersion = "1.0"
)

const corsMaxAgeSeconds = 300

// Archive stores relayed audio. *objectstore.NatsObjectStore implements it.
type Archive = core.AudioArchive

// Options configures a Server. Archive may be nil.
type Options struct {
	Synthesizer    core.Synthesizer
	Prober         core.SpaceProber
	Archive        Archive
	Runtime        tts.Runtime
	SpaceURL       string
	AllowedOrigins []string
	Log            *logger.Logger
}

// Server routes the relay's HTTP endpoints.
type Server struct {
	router      chi.Router
	synthesizer core.Synthesizer
	prober      core.SpaceProber
	archive     Archive
	runtime     tts.Runtime
	spaceURL    string
	log         *logger.Logger
}

// NewServer creates a Server with its routes and middleware installed.
func NewServer(opts Options) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		synthesizer: opts.Synthesizer,
		prober:      opts.Prober,
		archive:     opts.Archive,
		runtime:     opts.Runtime,
		spaceURL:    opts.SpaceURL,
		log:         opts.Log,
	}

	s.middleware(opts.AllowedOrigins)
	s.routes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) middleware(allowedOrigins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", headerAudioKey},
		AllowCredentials: false,
		MaxAge:           corsMaxAgeSeconds,
	}))
}

func (s *Server) routes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/test-space", s.handleTestSpace)
	s.router.Post("/synthesize", s.handleSynthesize)
	s.router.Post("/synthesize-download", s.handleSynthesizeDownload)
	s.router.Get("/download", s.handleDownload)
	s.router.Get("/archive/{key}", s.handleArchive)
}
