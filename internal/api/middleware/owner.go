package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/leadgen-api/internal/api/shared"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
)

// OwnerHeader optionally names the owner a request acts for.
const OwnerHeader = "X-Owner-ID"

// OwnerMiddleware resolves the job owner for each request. There is no
// authentication: a valid UUID in X-Owner-ID is trusted, and anything else
// falls back to the configured default owner.
type OwnerMiddleware struct {
	defaultOwner uuid.UUID
}

// NewOwnerMiddleware creates an OwnerMiddleware that falls back to defaultOwner.
func NewOwnerMiddleware(defaultOwner uuid.UUID) *OwnerMiddleware {
	return &OwnerMiddleware{defaultOwner: defaultOwner}
}

// ResolveOwner stores the owner ID in the request context.
func (m *OwnerMiddleware) ResolveOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := m.defaultOwner
		if header := r.Header.Get(OwnerHeader); header != "" {
			parsed, err := uuid.Parse(header)
			if err == nil && parsed != uuid.Nil {
				ownerID = parsed
			} else {
				logger.FromContext(r.Context()).Debug("ignoring invalid owner header",
					"header", OwnerHeader)
			}
		}

		next.ServeHTTP(w, r.WithContext(shared.WithOwnerID(r.Context(), ownerID)))
	})
}
