package session

import (
	"context"
	"net/http"
)

type contextKey string

const ctxKey contextKey = "session"

type current struct {
	id   string
	data *Data
}

// Middleware loads the shopper's session, creating one on first visit, and
// stores it in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, data, err := m.GetSession(r.Context(), r)
		if err != nil {
			data = &Data{}
			id, err = m.CreateSession(r.Context(), w, data)
			if err != nil {
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), ctxKey, &current{id: id, data: data})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the session id and data placed by Middleware.
func FromContext(ctx context.Context) (string, *Data) {
	if ctx == nil {
		return "", nil
	}
	cur, ok := ctx.Value(ctxKey).(*current)
	if !ok {
		return "", nil
	}
	return cur.id, cur.data
}

// WithSession returns a context carrying the given session, for callers
// outside the middleware chain.
func WithSession(ctx context.Context, id string, data *Data) context.Context {
	return context.WithValue(ctx, ctxKey, &current{id: id, data: data})
}
