package preview

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/rcarmo/go-emote/internal/logging"
)

// NewServer returns an HTTP server exposing the static preview page at /
// and the frame stream at /ws. static may be nil.
func NewServer(addr string, hub *Hub, static fs.FS, log *logging.Logger) *http.Server {
	if log == nil {
		log = logging.Named("preview")
	}

	mux := http.NewServeMux()
	if static != nil {
		mux.Handle("/", http.FileServer(http.FS(static)))
	}
	mux.Handle("/ws", hub)

	h := securityHeadersMiddleware(mux)
	h = requestLoggingMiddleware(h, log)

	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// Inline script and WASM for the single-page viewer
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' 'wasm-unsafe-eval'; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:")

		next.ServeHTTP(w, r)
	})
}

func requestLoggingMiddleware(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("%s %s %s %s", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
