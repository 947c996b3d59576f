package httpapi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

var participantKey contextKey

func participantID(ctx context.Context) string {
	pid, _ := ctx.Value(participantKey).(string)
	return pid
}

// requireAuth resolves the bearer token to a participant id and stashes it
// in the request context. Everything behind it can assume a principal.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "no token")
			return
		}

		pid, err := a.Auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), participantKey, pid)))
	})
}
