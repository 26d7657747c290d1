package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// newRequestIDRouter echoes the context request id in X-Context-Request-ID.
func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Context-Request-ID", c.GetString(RequestIDKey))
		c.Status(http.StatusOK)
	})
	return r
}

func requestWithID(r http.Handler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	w := requestWithID(newRequestIDRouter(), "")

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generated request id %q is not a UUID: %v", id, err)
	}
	if ctxID := w.Header().Get("X-Context-Request-ID"); ctxID != id {
		t.Errorf("context id %q does not match response id %q", ctxID, id)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	const upstreamID = "lb-7f3a9c-0001"

	w := requestWithID(newRequestIDRouter(), upstreamID)

	if got := w.Header().Get(RequestIDHeader); got != upstreamID {
		t.Errorf("response X-Request-ID = %q, want %q", got, upstreamID)
	}
}

func TestRequestIDMiddleware_ReplacesMalformedID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"too long", strings.Repeat("a", maxRequestIDLength+1)},
		{"contains space", "abc def"},
		{"non ascii", "requête"},
	}

	r := newRequestIDRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := requestWithID(r, tt.id).Header().Get(RequestIDHeader)
			if got == tt.id {
				t.Fatalf("malformed id %q was propagated", tt.id)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("replacement id %q is not a UUID", got)
			}
		})
	}
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()

	ids := make(map[string]struct{}, 10)
	for i := range 10 {
		id := requestWithID(r, "").Header().Get(RequestIDHeader)
		if _, seen := ids[id]; seen {
			t.Errorf("duplicate request ID %q on iteration %d", id, i)
		}
		ids[id] = struct{}{}
	}
}
