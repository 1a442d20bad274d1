package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func preflight(handler http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("listed origin gets credentials", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://shop.example"}, false)(okHandler())
		w := preflight(handler, "https://shop.example")
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin is not echoed", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://shop.example"}, false)(okHandler())
		w := preflight(handler, "https://evil.example")
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("development allows any origin without credentials", func(t *testing.T) {
		handler := CORSMiddleware(nil, true)(okHandler())
		w := preflight(handler, "http://localhost:3000")
		assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}
