package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/leadgen-api/internal/api/shared"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
)

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var seenTrace, seenReqID string
	handler := chimiddleware.RequestID(NewTraceMiddleware(log)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			seenTrace = shared.GetTraceID(r.Context())
			seenReqID = logger.RequestID(r.Context())
			logger.FromContext(r.Context()).Info("inside handler")
		})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil))

	require.Len(t, seenTrace, 32)
	assert.Equal(t, seenTrace, w.Header().Get(shared.TraceIDHeader))
	assert.NotEmpty(t, seenReqID)
	logger.AssertLogField(t, buf, "trace_id", seenTrace)
	logger.AssertLogContains(t, buf, "inside handler")
}

func TestOwnerMiddleware(t *testing.T) {
	defaultOwner := uuid.New()
	explicit := uuid.New()
	m := NewOwnerMiddleware(defaultOwner)

	tests := []struct {
		name   string
		header string
		want   uuid.UUID
	}{
		{name: "no header", want: defaultOwner},
		{name: "valid header", header: explicit.String(), want: explicit},
		{name: "invalid header", header: "not-a-uuid", want: defaultOwner},
		{name: "nil uuid", header: uuid.Nil.String(), want: defaultOwner},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got uuid.UUID
			handler := m.ResolveOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = shared.GetOwnerID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
			if tc.header != "" {
				req.Header.Set(OwnerHeader, tc.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	t.Run("rejects beyond burst", func(t *testing.T) {
		handler := NewRateLimiter(0.001, 2).Limit(ok)

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs", nil))
			codes = append(codes, w.Code)
			if w.Code == http.StatusTooManyRequests {
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
				assert.JSONEq(t, `{"error":"Too many requests"}`, w.Body.String())
			}
		}
		assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
	})

	t.Run("disabled", func(t *testing.T) {
		handler := NewRateLimiter(0, 0).Limit(ok)
		for i := 0; i < 50; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs", nil))
			assert.Equal(t, http.StatusAccepted, w.Code)
		}
	})
}
