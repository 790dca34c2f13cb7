package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
)

type errorBody struct {
	Kind              apperr.Kind `json:"kind"`
	Message           string      `json:"message"`
	RetryAfterSeconds int         `json:"retryAfterSeconds,omitempty"`
}

// ErrorHandler renders every failure as {"kind", "message"}. Internal errors
// are logged in full and shown to the client generically.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		l := logging.FromContext(c.Request().Context())

		var (
			status int
			body   errorBody
			he     *echo.HTTPError
			ae     *apperr.Error
		)
		switch {
		case errors.As(err, &ae):
			body.Kind = ae.Kind
			status = apperr.Status(ae.Kind)
			body.Message = ae.Message
			if status >= http.StatusInternalServerError {
				l.Error("request_failed", "kind", ae.Kind, "error", err)
				body.Message = "internal server error"
			}
		case errors.As(err, &he):
			status = he.Code
			body.Kind = kindForStatus(status)
			body.Message = http.StatusText(status)
			if m, ok := he.Message.(string); ok && status < http.StatusInternalServerError {
				body.Message = m
			}
		default:
			l.Error("request_failed", "error", err)
			status = http.StatusInternalServerError
			body.Kind = apperr.KindInternal
			body.Message = "internal server error"
		}

		if ra := apperr.RetryAfterOf(err); ra > 0 {
			secs := int(math.Ceil(ra.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			body.RetryAfterSeconds = secs
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			l.Error("error_response_failed", "error", werr)
		}
	}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperr.KindValidation
	case http.StatusUnauthorized:
		return apperr.KindTokenInvalid
	case http.StatusForbidden:
		return apperr.KindForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.KindNotFound
	case http.StatusTooManyRequests:
		return apperr.KindAccountLocked
	}
	if status >= http.StatusInternalServerError {
		return apperr.KindInternal
	}
	return apperr.KindValidation
}
