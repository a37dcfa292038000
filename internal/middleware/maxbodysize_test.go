package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/middleware"
)

// decodeHandler reads the body the way the trip and series handlers do and
// answers 413 when the read is cut off.
var decodeHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if _, err := io.ReadAll(r.Body); err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	w.WriteHeader(http.StatusCreated)
})

// seriesBody is a recurring series request with n weekly occurrences.
func seriesBody(n int) string {
	dates := make([]string, n)
	for i := range dates {
		dates[i] = `"2026-01-05T08:00:00Z"`
	}
	return `{"program_id":"p","occurrences":[` + strings.Join(dates, ",") + `]}`
}

func TestMaxBodySizeHandler_SeriesWithinLimit(t *testing.T) {
	body := seriesBody(4)
	h := middleware.NewMaxBodySizeHandler(int64(len(body)))(decodeHandler)

	req := httptest.NewRequest(http.MethodPost, "/series", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestMaxBodySizeHandler_DeclaredLengthRejected(t *testing.T) {
	body := seriesBody(50)
	h := middleware.NewMaxBodySizeHandler(100)(decodeHandler)

	req := httptest.NewRequest(http.MethodPost, "/series", strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "request_too_large", resp["error"]["code"])
}

func TestMaxBodySizeHandler_StreamedBodyCutOff(t *testing.T) {
	h := middleware.NewMaxBodySizeHandler(100)(decodeHandler)

	req := httptest.NewRequest(http.MethodPost, "/series", strings.NewReader(seriesBody(50)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
