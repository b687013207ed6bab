package oauth

import (
	"context"
)

// Cleanup removes expired state tokens and reports how many were deleted.
// Complete already rejects expired tokens; this only keeps the table small.
func (h *Handshake) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := h.sessions.DeleteExpired(ctx, h.now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		h.log.Info("OAuth cleanup: deleted expired sessions", "count", deleted)
	}
	return deleted, nil
}
