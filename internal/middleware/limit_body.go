package middleware

import (
	"fmt"
	"net/http"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
)

// MaxBodySize bounds JSON request bodies. Signed transactions and typed data fit well within it.
const MaxBodySize = 1 << 20

// LimitBody caps request bodies at limit bytes. Declared oversize bodies are
// refused up front; chunked ones fail on read with *http.MaxBytesError.
func LimitBody(limit int64) func(http.Handler) http.Handler {
	detail := fmt.Sprintf("limit is %d bytes", limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				WriteError(w, apperrors.NewWithDetail(
					apperrors.ErrCodeBadRequest,
					"Request body too large",
					detail,
					http.StatusRequestEntityTooLarge,
				))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
