package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"careerlens/internal/domain"
	"careerlens/internal/profile"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, domain.ErrConfig),
		errors.Is(err, domain.ErrInvalidTurn),
		errors.Is(err, profile.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress),
		errors.Is(err, domain.ErrAlreadyStarted),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrTranscriptSealed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrResourceAcquisition):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return domain.ErrorCodeConfig
	case errors.Is(err, domain.ErrInvalidTurn):
		return domain.ErrorCodeInvalidTurn
	case errors.Is(err, domain.ErrGeneration):
		return domain.ErrorCodeGeneration
	case errors.Is(err, domain.ErrResourceAcquisition):
		return domain.ErrorCodeResources
	default:
		return ""
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusFor(err)
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "error", err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, errorBody{Error: message, Code: string(codeFor(err))})
	}
	if writeErr != nil {
		s.log.Warn("write error response", "error", writeErr)
	}
}
