package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/portal-access/internal/domain"
)

// NewRouter registers portal routes and the middleware stack.
// Centralizing routes here keeps guard coverage and error behavior
// consistent across every navigable view.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/.well-known/jwks.json", handler.jwks)

	// Public views: login and the generic denial page are the guard's
	// redirect targets and must never themselves be guarded.
	r.Get("/login", handler.loginPage)
	r.Get("/access-denied", handler.accessDeniedPage)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/home", http.StatusSeeOther)
	})

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/login", handler.login)
		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/refresh", handler.refresh)
			r.Post("/logout", handler.logout)
			r.Get("/me", handler.me)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions/{session_id}", handler.revokeSession)
		})
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)
		r.Use(handler.requirePermission(domain.PermManageUsers))
		r.Post("/users", handler.createUser)
		r.Get("/users", handler.listUsers)
		r.Put("/users/{user_id}/role", handler.updateUserRole)
	})

	// Every navigable view goes through the guard with its static
	// requirement from the route table.
	guardedViews := map[string]string{
		"/home":                   "Home",
		"/patient/dashboard":      "My Health",
		"/patient/records":        "My Records",
		"/patient/appointments":   "My Appointments",
		"/provider/dashboard":     "Provider Dashboard",
		"/provider/patients":      "Patients",
		"/provider/prescriptions": "Prescriptions",
		"/billing/invoices":       "Invoices",
		"/reception/checkin":      "Check-in",
		"/admin/users":            "User Management",
		"/admin/audit":            "Audit Log",
	}
	for path, title := range guardedViews {
		r.Method(http.MethodGet, path, handler.guard.ProtectPath(path, handler.viewPage(title)))
	}

	return r
}

func pathParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
