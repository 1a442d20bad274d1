package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errorCodes = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusGone,
	http.StatusUnprocessableEntity,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusServiceUnavailable,
}

func TestProperty_ErrorsHaveConsistentStructure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every error response carries code, message and timestamp", prop.ForAll(
		func(pick int, message string) bool {
			statusCode := errorCodes[pick%len(errorCodes)]

			w := httptest.NewRecorder()
			RespondWithError(w, statusCode, message)

			if w.Code != statusCode || w.Header().Get("Content-Type") != "application/json" {
				return false
			}

			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}
			if response.Error.Code != http.StatusText(statusCode) || response.Error.Message != message {
				return false
			}
			_, err := time.Parse(time.RFC3339, response.Error.Timestamp)
			return err == nil && response.Error.Details == nil
		},
		gen.IntRange(0, 1000),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.Property("details are passed through", prop.ForAll(
		func(key, value string) bool {
			w := httptest.NewRecorder()
			RespondWithErrorDetails(w, http.StatusUnprocessableEntity, "price list rejected", map[string]any{key: value})

			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}
			return response.Error.Details[key] == value
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithValidationErrors(w, []ValidationError{{Field: "items[0].listing_id", Message: "This field is required"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "validation failed", response.Error.Message)
	require.Contains(t, response.Error.Details, "validation_errors")
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProperty_JSONResponsesRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("payloads come back unchanged", prop.ForAll(
		func(data map[string]string) bool {
			w := httptest.NewRecorder()
			RespondWithJSON(w, http.StatusOK, data)

			var result map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
				return false
			}
			for k, v := range data {
				if result[k] != v {
					return false
				}
			}
			return len(result) == len(data)
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
