package web

import (
	"net/http"

	"github.com/JonMunkholm/kitstash/internal/logging"
)

// requestMetadata tags the request's log lines, including those written by
// the import it starts, with the client IP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr // already rewritten by TrustedRealIP
		next.ServeHTTP(w, r.WithContext(logging.ContextWith(r.Context(), "ip", ip)))
	})
}
