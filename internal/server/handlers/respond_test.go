package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tourbook/internal/server/apperr"
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func TestResponder_OperationalError(t *testing.T) {
	rs := &Responder{Logger: setupTestLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours/nope", nil)
	w := httptest.NewRecorder()
	rs.Error(w, req, apperr.NotFound("No tour found with id nope."))

	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No tour found with id nope.", body["message"])
	assert.Equal(t, "fail", body["status"])
	assert.NotContains(t, body, "stack")
}

func TestResponder_SanitizedUnclassifiedError(t *testing.T) {
	rs := &Responder{Logger: setupTestLogger()}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours", nil)
	w := httptest.NewRecorder()
	rs.Error(w, req, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Something has gone wrong.", body["message"])
	assert.Equal(t, "error", body["status"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestResponder_VerboseExposesCause(t *testing.T) {
	rs := &Responder{Logger: setupTestLogger(), Verbose: true}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours", nil)
	w := httptest.NewRecorder()
	rs.Error(w, req, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["message"], "connection refused")
	assert.Contains(t, body, "stack")
}

func TestResponder_BrowserPathGetsErrorPage(t *testing.T) {
	rs := &Responder{Logger: setupTestLogger()}

	req := httptest.NewRequest(http.MethodGet, "/tours/the-forest-hiker", nil)
	w := httptest.NewRecorder()
	rs.Error(w, req, apperr.NotFound("Page not found."))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Page not found.")
	assert.NotContains(t, w.Body.String(), `"success"`)
}

func TestResponder_ErrorPageEscapesMessage(t *testing.T) {
	rs := &Responder{Logger: setupTestLogger()}

	req := httptest.NewRequest(http.MethodGet, "/tours/x", nil)
	w := httptest.NewRecorder()
	rs.Error(w, req, apperr.BadRequest("<script>alert(1)</script>"))

	assert.NotContains(t, w.Body.String(), "<script>")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}
