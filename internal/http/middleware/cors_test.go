package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantHandled bool
	}{
		{name: "listed origin", allowed: []string{"https://reluxe.com/"}, method: http.MethodGet, origin: "https://reluxe.com", wantOrigin: "https://reluxe.com", wantStatus: http.StatusOK, wantHandled: true},
		{name: "unknown origin", allowed: []string{"https://reluxe.com"}, method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK, wantHandled: true},
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodPost, origin: "https://any.example", wantOrigin: "https://any.example", wantStatus: http.StatusOK, wantHandled: true},
		{name: "preflight", allowed: []string{"https://reluxe.com"}, method: http.MethodOptions, origin: "https://reluxe.com", preflight: true, wantOrigin: "https://reluxe.com", wantStatus: http.StatusNoContent},
		{name: "no origin", allowed: []string{"*"}, method: http.MethodGet, wantStatus: http.StatusOK, wantHandled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(tt.method, "/api/booking/flows", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(okHandler(&called)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHandled, called)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			}
		})
	}
}
