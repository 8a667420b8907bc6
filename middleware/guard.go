package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Yellowatch/boxumco"
)

// Validator is satisfied by *boxumco.Engine.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*boxumco.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the identity stored by Guard.
func AuthResultFromContext(ctx context.Context) (*boxumco.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*boxumco.AuthResult)
	return res, ok
}

// WithAuthResult stores res in ctx the way Guard does.
func WithAuthResult(ctx context.Context, res *boxumco.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard rejects requests without a valid bearer access token.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				reject(w, http.StatusUnauthorized, boxumco.ErrUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(w, http.StatusUnauthorized, boxumco.ErrUnauthorized)
				return
			}

			res, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				reject(w, http.StatusUnauthorized, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// RequireAccountType allows only the given account type through.
func RequireAccountType(t boxumco.AccountType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				reject(w, http.StatusUnauthorized, boxumco.ErrUnauthorized)
				return
			}
			if res.AccountType != t {
				reject(w, http.StatusForbidden, boxumco.ErrAccountTypeMismatch)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, status int, err error) {
	code := boxumco.ErrorCode(err)
	if code == "internal" {
		err = boxumco.ErrUnauthorized
		code = boxumco.ErrorCode(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": err.Error(),
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
