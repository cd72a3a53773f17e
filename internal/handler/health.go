package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/datepoll/internal/logging"
)

// Health returns a liveness handler.  When ping is non-nil it must succeed
// within two seconds or the handler answers 503, letting load balancers drop
// an instance whose store is unreachable.
func Health(ping func(ctx context.Context) error) echo.HandlerFunc {
    return func(c echo.Context) error {
        if ping != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := ping(ctx); err != nil {
                logging.FromContext(ctx).Warn().Err(err).Msg("health check failed")
                return c.String(http.StatusServiceUnavailable, "unavailable")
            }
        }
        return c.String(http.StatusOK, "ok")
    }
}
