package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	gradauth "github.com/MrEthical07/gradauth"
	"github.com/MrEthical07/gradauth/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps engine errors onto the HTTP surface. Rate-limit errors
// additionally carry a Retry-After header in whole seconds, rounded up.
func writeError(w http.ResponseWriter, err error) {
	var rl *gradauth.RateLimitError
	if errors.As(err, &rl) {
		seconds := int64(math.Ceil(rl.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: rl.Error()})
		return
	}

	writeJSON(w, statusFor(err), errorBody{Error: publicMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gradauth.ErrInvalidCredentials),
		errors.Is(err, gradauth.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, gradauth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, gradauth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, gradauth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, gradauth.ErrPasswordPolicy),
		errors.Is(err, gradauth.ErrPasswordReuse),
		errors.Is(err, gradauth.ErrRoleInvalid),
		errors.Is(err, gradauth.ErrSelfDemoteForbidden),
		errors.Is(err, gradauth.ErrLastAdminForbidden):
		return http.StatusBadRequest
	case errors.Is(err, gradauth.ErrNotConfigured),
		errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal failures opaque to clients.
func publicMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}

	switch {
	case errors.Is(err, gradauth.ErrInvalidCredentials):
		return gradauth.ErrInvalidCredentials.Error()
	case errors.Is(err, gradauth.ErrTokenInvalid):
		return gradauth.ErrTokenInvalid.Error()
	case errors.Is(err, gradauth.ErrEmailTaken):
		return gradauth.ErrEmailTaken.Error()
	case errors.Is(err, gradauth.ErrUserNotFound):
		return gradauth.ErrUserNotFound.Error()
	case errors.Is(err, gradauth.ErrPasswordPolicy):
		return gradauth.ErrPasswordPolicy.Error()
	case errors.Is(err, gradauth.ErrPasswordReuse):
		return gradauth.ErrPasswordReuse.Error()
	case errors.Is(err, gradauth.ErrRoleInvalid):
		return gradauth.ErrRoleInvalid.Error()
	case errors.Is(err, gradauth.ErrSelfDemoteForbidden):
		return gradauth.ErrSelfDemoteForbidden.Error()
	case errors.Is(err, gradauth.ErrLastAdminForbidden):
		return gradauth.ErrLastAdminForbidden.Error()
	case errors.Is(err, gradauth.ErrNotConfigured):
		return gradauth.ErrNotConfigured.Error()
	case errors.Is(err, store.ErrUnavailable):
		return "service unavailable"
	default:
		return "internal error"
	}
}
