package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func postBody(t *testing.T, limiter BodyLimit, body string, declaredLength int64) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var captured string
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader(body))
	if declaredLength != 0 {
		req.ContentLength = declaredLength
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, captured
}

func TestBodyLimitPassesSmallBody(t *testing.T) {
	rr, captured := postBody(t, BodyLimit{Max: 10}, "hello", 0)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", captured, "body must reach the handler intact")
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	rr, _ := postBody(t, BodyLimit{Max: 5}, "excessive", 0)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimitTrustsDeclaredLength(t *testing.T) {
	// A lying Content-Length well past the cap is rejected without reading.
	rr, _ := postBody(t, BodyLimit{Max: 5}, "content", 100)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
