package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/cardigan/pkg/jobsvc"
	"github.com/codeready-toolchain/cardigan/pkg/store"
)

// ErrInvalidTransition is returned by the job-action handlers when the
// requested action does not apply to the job's current status (spec §7
// "allowed transitions"), distinct from jobsvc's creation-time errors.
var ErrInvalidTransition = errors.New("api: action not valid for job's current status")

// mapServiceError maps store/jobsvc sentinel errors to HTTP error
// responses (spec §4.9 "DuplicateTranscript (409), InvalidTransition
// (409), NotFound (404), ValidationError (422), Internal (500)"),
// mirroring tarsy's pkg/api/errors.go mapServiceError.
func mapServiceError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	case errors.Is(err, jobsvc.ErrDuplicateTranscript):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, jobsvc.ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "job is not in a state that allows this action")
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
