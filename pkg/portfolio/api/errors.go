package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/purge"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the error kind and carries a human-readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[string]int{
	portfolio.KindValidation:          http.StatusBadRequest,
	portfolio.KindUnknownGroup:        http.StatusBadRequest,
	portfolio.KindNoSelection:         http.StatusBadRequest,
	portfolio.KindReferenceResolution: http.StatusBadRequest,
	portfolio.KindRecordNotFound:      http.StatusNotFound,
	portfolio.KindAuthentication:      http.StatusUnauthorized,
	portfolio.KindNotAuthenticated:    http.StatusUnauthorized,
	portfolio.KindInvalidTransition:   http.StatusConflict,
	portfolio.KindCountdownActive:     http.StatusConflict,
	portfolio.KindUpload:              http.StatusBadGateway,
	portfolio.KindFunctionInvocation:  http.StatusBadGateway,
	portfolio.KindRemoteDeletion:      http.StatusBadGateway,
	portfolio.KindRecordWrite:         http.StatusInternalServerError,
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	if status, ok := kindStatus[portfolio.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse. Internal errors are logged and
// their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	detail := ErrorDetail{Code: portfolio.Kind(err), Message: err.Error()}

	var terr *purge.TransitionError
	if errors.As(err, &terr) {
		detail.Code = terr.Code
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "kind", detail.Code, "error", err)
		if detail.Code == portfolio.KindInternal {
			detail.Message = "internal server error"
		}
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: detail})
}
