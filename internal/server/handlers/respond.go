package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// Responder renders every response in the system: success envelopes,
// and the single error rendering path all failures are forwarded to.
// Verbose mode surfaces full error detail; sanitized mode never leaks
// internals for unclassified failures.
type Responder struct {
	Logger  *slog.Logger
	Verbose bool
}

// JSON writes a JSON response with the given status code.
func (rs *Responder) JSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.Logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// Data writes the single-resource envelope keyed by the resource name.
func (rs *Responder) Data(w http.ResponseWriter, statusCode int, name string, v any) {
	rs.JSON(w, statusCode, map[string]any{
		"success": true,
		"data":    map[string]any{name: v},
	})
}

// List writes the list envelope with a result count.
func (rs *Responder) List(w http.ResponseWriter, plural string, results int, v any) {
	rs.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": results,
		"data":    map[string]any{plural: v},
	})
}

// translate classifies collaborator failures into operational errors at
// the boundary. Anything unrecognized stays non-operational.
func translate(err error) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var dupErr *storage.DuplicateError
	if errors.As(err, &dupErr) {
		return apperr.Conflict(dupErr.Value)
	}
	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		return apperr.Validation(valErr)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Resource not found.")
	}
	return apperr.Internal(err)
}

// Error forwards a failure through the taxonomy and renders it for the
// request surface: a JSON envelope for API routes, an error page for
// browser routes.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr := translate(err)

	if !appErr.Operational {
		rs.Logger.Error("unclassified error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}

	if strings.HasPrefix(r.URL.Path, "/api") {
		rs.errorJSON(w, appErr, err)
		return
	}
	rs.errorPage(w, appErr, err)
}

func (rs *Responder) errorJSON(w http.ResponseWriter, appErr *apperr.Error, cause error) {
	body := map[string]any{
		"success": false,
		"message": appErr.Message,
		"status":  appErr.Status(),
	}
	if rs.Verbose {
		body["error"] = cause.Error()
		body["stack"] = string(debug.Stack())
		if !appErr.Operational {
			body["message"] = cause.Error()
		}
	}
	rs.JSON(w, appErr.Code, body)
}

func (rs *Responder) errorPage(w http.ResponseWriter, appErr *apperr.Error, cause error) {
	msg := appErr.Message
	if rs.Verbose && !appErr.Operational {
		msg = cause.Error()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(appErr.Code)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Something went wrong</title></head>
<body><h1>Something has gone wrong.</h1><p>%s</p></body>
</html>
`, html.EscapeString(msg))
}
