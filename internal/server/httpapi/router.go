package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the route tree.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// public
	r.Post("/users/signup", s.signUp)
	r.Post("/users/signin", s.signIn)
	r.Post("/users/recover", s.requestRecovery)
	r.Patch("/users/recover/{userID}/{code}", s.confirmRecovery)
	r.Post("/admin/create", s.createAdmin)
	r.Get("/shared/{noteID}/{token}", s.readShared)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.checkCSRF)

		r.Post("/users/logout", s.logout)
		r.Patch("/users/password", s.changePassword)
		r.Get("/users/statistics", s.statistics)
		r.Delete("/users/me", s.deleteAccount)

		r.Post("/notes", s.createNote)
		r.Get("/notes", s.listNotes)
		r.Get("/notes/{noteID}", s.getNote)
		r.Put("/notes/{noteID}", s.updateNote)
		r.Delete("/notes/{noteID}", s.deleteNote)
		r.Post("/notes/{noteID}/share", s.createShareLink)
		r.Delete("/notes/{noteID}/share", s.deleteShareLink)

		r.Post("/accesses", s.grantAccess)
		r.Patch("/accesses", s.setPermission)
		r.Delete("/accesses", s.revokeAccess)

		admin := r.With(s.requireAdmin)
		admin.Delete("/admin/users/{userID}", s.adminDeleteUser)
		admin.Delete("/admin/users", s.adminDeleteAllUsers)
		admin.Delete("/admin/notes/{noteID}", s.adminDeleteNote)
	})

	return r
}
