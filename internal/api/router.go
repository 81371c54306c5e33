package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otobox/otobox-be/internal/api/handlers"
	"github.com/otobox/otobox-be/internal/auth"
	"github.com/otobox/otobox-be/internal/services"
)

// Options carries router settings that come from configuration.
type Options struct {
	SecureCookies bool
	// StorageRoot, when non-empty, is served under /storage/ so local
	// locators resolve. Empty for the remote storage variant.
	StorageRoot string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(tokens *auth.TokenService, accountService services.AccountServiceProvider, soundService services.SoundServiceProvider, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration for development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"}, // Adjust for your frontend URL
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(accountService, tokens, opts.SecureCookies)
	soundHandler := handlers.NewSoundHandler(soundService)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(tokens.Middleware())
			r.Get("/me", authHandler.Me)
		})
	})

	r.Route("/sounds", func(r chi.Router) {
		r.Get("/", soundHandler.List)
		r.Get("/{id}/stream", soundHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(tokens.Middleware())
			r.Post("/upload", soundHandler.Upload)
			r.Post("/upload-url", soundHandler.UploadURL)
			r.Post("/metadata", soundHandler.Metadata)
			r.Get("/{id}/download", soundHandler.Download)
		})
	})

	// Local variant: stored objects must be retrievable at their locators.
	if opts.StorageRoot != "" {
		fileServer := http.StripPrefix("/storage/", http.FileServer(http.Dir(opts.StorageRoot)))
		r.Get("/storage/*", fileServer.ServeHTTP)
	}

	return r
}
