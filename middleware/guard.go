package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/keywarden/keywarden"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [RequireSession].
func SessionFromContext(ctx context.Context) (*keywarden.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*keywarden.Session)
	return session, ok
}

// RequireSession returns middleware that rejects requests without a valid
// bearer session token. The validated session is placed in the request
// context.
func RequireSession(engine *keywarden.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Annotate returns middleware that attaches the client IP and User-Agent
// to the request context. Mount it ahead of handlers that call SignUp or
// SignIn so the engine can key rate limits and record session metadata.
func Annotate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := keywarden.WithClientIP(r.Context(), clientIP(r))
		ctx = keywarden.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
