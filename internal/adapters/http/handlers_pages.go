package http

import (
	"fmt"
	"html"
	"net/http"
)

// The portal pages are minimal HTML shells; the real views are owned by
// the front-end build and served from the CDN. These exist so the guard
// has concrete navigable targets and so local development works
// end to end.

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!doctype html>
<html>
<head><title>%s · CareBridge Portal</title></head>
<body>
<h1>%s</h1>
%s
</body>
</html>
`, html.EscapeString(title), html.EscapeString(title), body)
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	returnTo := sanitizeReturnTo(r.URL.Query().Get(returnToParam), "/home")
	writePage(w, http.StatusOK, "Sign in", fmt.Sprintf(
		`<form method="post" action="/auth/v1/login?%s=%s">
<label>Email <input type="email" name="email"></label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Sign in</button>
</form>`,
		returnToParam, html.EscapeString(returnTo),
	))
}

func (h *Handler) accessDeniedPage(w http.ResponseWriter, _ *http.Request) {
	// Deliberately generic: the page never reveals which role or
	// permission was missing.
	writePage(w, http.StatusForbidden, "Access denied", `<p>You do not have access to that page.</p><p><a href="/home">Back to home</a></p>`)
}

func (h *Handler) viewPage(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writePage(w, http.StatusOK, title, "<p>Loading</p>")
	}
}
