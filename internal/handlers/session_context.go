package handlers

import (
	"context"
	"net/http"

	"github.com/gitshopapp/storefront/internal/session"
)

// sessionFromRequest returns the shopper session placed by SessionMiddleware,
// falling back to the cookie for routes outside it.
func (h *Handlers) sessionFromRequest(ctx context.Context, r *http.Request) (string, *session.Data) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id, sess := session.FromContext(ctx); sess != nil {
		return id, sess
	}
	if h == nil || h.sessionManager == nil || r == nil {
		return "", nil
	}
	id, sess, err := h.sessionManager.GetSession(ctx, r)
	if err != nil {
		return "", nil
	}
	return id, sess
}

func (h *Handlers) saveSession(ctx context.Context, id string, data *session.Data) {
	if id == "" || data == nil {
		return
	}
	if err := h.sessionManager.Save(ctx, id, data); err != nil {
		h.loggerFromContext(ctx).Warn("failed to save session", "error", err)
	}
}
