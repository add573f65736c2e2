package middleware

import (
	"context"
	"net/http"
	"strings"

	gradauth "github.com/MrEthical07/gradauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validation result stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*gradauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*gradauth.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid bearer access token and stores the
// validation result on the request context. When adminOnly is set the token's
// role claim must be admin.
func Guard(engine *gradauth.Engine, adminOnly bool) func(http.Handler) http.Handler {
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

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if adminOnly && res.Role != gradauth.RoleAdmin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
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
