package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/carebridge/portal-access/internal/domain"
	"github.com/carebridge/portal-access/internal/session"
)

const (
	sessionCookieName = "portal_token"
	returnToParam     = "return_to"
)

// SessionResolver maps a raw portal token to the shared session state
// container. Resolution failures leave the caller unauthenticated.
type SessionResolver interface {
	ResolveState(ctx context.Context, rawToken string) (*session.State, error)
}

// Guard wraps navigable portal views. On every navigation it forces
// expiry detection, evaluates the view's static requirement against a
// fresh session snapshot, and performs the redirect the decision
// implies. Decisions are never cached across navigations.
type Guard struct {
	resolver   SessionResolver
	loginPath  string
	deniedPath string
}

// NewGuard builds the route guard with its redirect targets.
func NewGuard(resolver SessionResolver, loginPath, deniedPath string) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	if deniedPath == "" {
		deniedPath = "/access-denied"
	}
	return &Guard{
		resolver:   resolver,
		loginPath:  loginPath,
		deniedPath: deniedPath,
	}
}

// Protect wraps a view with an explicit requirement.
func (g *Guard) Protect(req domain.RouteRequirement, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := domain.Anonymous()
		var st *session.State

		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			resolved, resolveErr := g.resolver.ResolveState(r.Context(), cookie.Value)
			if resolveErr == nil && resolved.CheckValid() {
				st = resolved
				snap = resolved.Snapshot()
			}
		}

		decision := domain.Evaluate(snap, req, r.URL.RequestURI())
		switch decision.Kind {
		case domain.DecisionAllow:
			if st != nil {
				st.TouchActivity()
			}
			next.ServeHTTP(w, r)

		case domain.DecisionRequiresLogin:
			target := g.loginPath + "?" + returnToParam + "=" + url.QueryEscape(decision.ReturnPath)
			http.Redirect(w, r, target, http.StatusSeeOther)

		case domain.DecisionDeny:
			// The reason stays in the log; the user sees a generic page.
			httpLogger().WarnContext(r.Context(), "navigation denied",
				"operation", "route_guard",
				"outcome", "deny",
				"path", r.URL.Path,
				"reason", string(decision.Reason),
				"request_id", requestIDFromContext(r.Context()),
			)
			http.Redirect(w, r, g.deniedPath, http.StatusSeeOther)
		}
	})
}

// ProtectPath wraps a view using the static route requirement table.
// A guarded path with no table entry fails closed.
func (g *Guard) ProtectPath(path string, next http.Handler) http.Handler {
	req, ok := RequirementFor(path)
	if !ok {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpLogger().ErrorContext(r.Context(), "guarded path missing requirement",
				"operation", "route_guard",
				"outcome", "deny",
				"path", path,
			)
			http.Redirect(w, r, g.deniedPath, http.StatusSeeOther)
		})
	}
	return g.Protect(req, next)
}

// sanitizeReturnTo restricts post-login redirects to in-portal paths.
func sanitizeReturnTo(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	if len(u.Path) == 0 || u.Path[0] != '/' || (len(u.Path) > 1 && u.Path[1] == '/') {
		return fallback
	}
	return u.RequestURI()
}
