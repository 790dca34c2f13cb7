package audit

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/auth"
)

// Middleware records one event per request after the handler has run. The
// handler's error is passed through untouched.
func Middleware(sink Sink, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			req := c.Request()
			ev := Event{
				Time:      time.Now().UTC(),
				Action:    action,
				IP:        c.RealIP(),
				UserAgent: req.UserAgent(),
				Method:    req.Method,
				Path:      c.Path(),
				Status:    statusOf(c, err),
				RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if claims := auth.Claims(c); claims != nil {
				ev.UserID = auth.UserID(c)
				ev.Role = claims.Role.String()
			}
			ev.Outcome = "success"
			if ev.Status >= http.StatusBadRequest {
				ev.Outcome = "failure"
			}
			if err != nil {
				var he *echo.HTTPError
				if !errors.As(err, &he) {
					ev.Kind = string(apperr.KindOf(err))
				}
			}

			if rerr := sink.Record(req.Context(), ev); rerr != nil {
				logging.FromContext(req.Context()).Error("audit_record_failed", "action", action, "error", rerr)
			}
			return err
		}
	}
}

func statusOf(c echo.Context, err error) int {
	if err == nil {
		if c.Response().Status == 0 {
			return http.StatusOK
		}
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.Status(apperr.KindOf(err))
}
