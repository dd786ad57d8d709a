package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/atmx/vault-engine/internal/model"
)

const (
	CallerHeader   = "X-Caller"
	OperatorHeader = "X-Operator-Token"
)

type callerKey struct{}

// RequireCaller parses the X-Caller header into the request context.
// Requests without a valid caller are rejected with 401.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(CallerHeader)
		if raw == "" {
			writeError(w, CallerHeader+" header is required", http.StatusUnauthorized)
			return
		}
		acct, err := model.ParseAccount(raw)
		if err != nil {
			writeError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, acct)))
	})
}

// Caller returns the account set by RequireCaller.
func Caller(ctx context.Context) model.Account {
	acct, _ := ctx.Value(callerKey{}).(model.Account)
	return acct
}

// RequireOperator rejects requests whose X-Operator-Token does not match
// token. An empty token rejects everything.
func RequireOperator(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(OperatorHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, "operator token required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
