package webdav

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/sdisaacson/desktop/internal/auth"
	"github.com/sdisaacson/desktop/internal/logging"
)

// Prefix is the URL path the WebDAV tree is served under.
const Prefix = "/webdav"

// NewHandler creates a WebDAV HTTP handler with authentication.
func NewHandler(fs *FS, a *auth.Auth) http.Handler {
	davHandler := &webdav.Handler{
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Prefix:     Prefix,
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logging.WithContext(r.Context()).Debug("webdav request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
		},
	}
	return TokenAuthMiddleware(a)(davHandler)
}

// TokenAuthMiddleware authenticates via Bearer token or, for clients that
// only speak Basic Auth, a token sent as the password.
func TokenAuthMiddleware(a *auth.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				a.Middleware(next).ServeHTTP(w, r)
				return
			}

			_, token, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="desktop"`)
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			p, _, err := a.ValidateToken(r.Context(), token)
			if err != nil {
				logging.Warn("webdav auth failed", zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Basic realm="desktop"`)
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}
