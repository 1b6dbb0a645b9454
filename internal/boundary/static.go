package boundary

import (
	"net/http"
	"os"
	"path/filepath"
)

// securityHeaders applies the UI-response header policy of §4.I: deny
// framing, disable MIME sniffing, restrict CSP to self plus the CDN
// origins the bundled UI actually loads from, and disable caching so a
// stale SPA shell never outlives a daemon upgrade.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' cdn.jsdelivr.net; style-src 'self' cdn.jsdelivr.net; img-src 'self' data:")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// spaFileServer serves an existing static file as-is; anything it can't
// find falls through to the SPA shell via spaFallback so client-side
// routes resolve on a hard reload.
func spaFileServer(webUIDir string, fileServer http.Handler) http.HandlerFunc {
	fallback := spaFallback(webUIDir)
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(webUIDir, filepath.Clean(r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		fallback(w, r)
	}
}

// spaFallback returns the SPA root document for any non-/api path
// without a file extension, per §4.I.
func spaFallback(webUIDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if filepath.Ext(r.URL.Path) != "" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(webUIDir, "index.html"))
	}
}
