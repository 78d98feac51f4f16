package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router builds the full route tree.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login/access-token", s.login)
		r.Post("/password-recovery/{email}", s.recoverPassword)
		r.Post("/reset-password", s.resetPassword)
		r.Post("/users/signup", s.signup)
		r.Post("/users/activate", s.activate)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", s.readMe)
				r.Patch("/me", s.updateMe)
				r.Delete("/me", s.deleteMe)
				r.Post("/me/change-password", s.changeMyPassword)
				r.Post("/2fa/enable", s.enableMyOTP)
				r.Post("/2fa/disable", s.disableMyOTP)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", s.listCredentials)
				r.Post("/", s.createCredential)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.readCredential)
					r.Patch("/", s.updateCredential)
					r.Delete("/", s.deleteCredential)
					r.Get("/show-password", s.showPassword)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireSuperuser)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.adminListUsers)
					r.Post("/", s.adminCreateUser)
					r.Post("/2fa/enable/{id}", s.adminEnableOTP)
					r.Post("/2fa/disable/{id}", s.adminDisableOTP)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.adminReadUser)
						r.Patch("/", s.adminUpdateUser)
						r.Delete("/", s.adminDeleteUser)
						r.Post("/change-password", s.adminChangePassword)
					})
				})

				r.Route("/credentials", func(r chi.Router) {
					r.Get("/", s.adminListCredentials)
					r.Post("/", s.adminCreateCredential)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.adminReadCredential)
						r.Patch("/", s.adminUpdateCredential)
						r.Delete("/", s.adminDeleteCredential)
						r.Get("/show-password", s.adminShowPassword)
					})
				})
			})
		})
	})

	return r
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
