// Package middleware adapts the engine's access-token verification to
// net/http. The guard reads the Authorization header, calls
// Engine.VerifyAccess, and injects the resulting AuthContext into the request
// context; it makes no authentication decisions of its own.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/pennyledger/authcore"
)

type authContextKey struct{}

// FromContext returns the AuthContext placed by [Guard].
func FromContext(ctx context.Context) (authcore.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(authcore.AuthContext)
	return auth, ok
}

// Guard wraps handlers with bearer-token verification. Expired tokens get a
// 401 with an expired hint header so clients can attempt a silent refresh
// instead of forcing a re-login.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
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

			ctx := authcore.WithDeviceInfo(r.Context(), r.UserAgent())
			auth, err := engine.VerifyAccess(ctx, token)
			if err != nil {
				if errors.Is(err, authcore.ErrTokenExpired) {
					w.Header().Set("X-Token-Expired", "true")
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, authContextKey{}, auth)))
		})
	}
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
