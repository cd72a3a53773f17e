package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/datepoll/internal/logging"
)

// RequestLogger tags every request with an id, attaches a request-scoped
// logger to its context and writes one access line when it completes.  An
// incoming X-Request-ID is reused so ids can be followed across proxies.
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            rid := req.Header.Get(echo.HeaderXRequestID)
            if rid == "" || len(rid) > 64 {
                rid = uuid.NewString()
            }
            c.Response().Header().Set(echo.HeaderXRequestID, rid)

            log := base.With().Str("request_id", rid).Logger()
            c.SetRequest(req.WithContext(logging.ContextWithLogger(req.Context(), log)))

            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }

            status := c.Response().Status
            ev := log.Info()
            switch {
            case status >= 500:
                ev = log.Error()
            case status >= 400:
                ev = log.Warn()
            }
            ev.Str("method", req.Method).
                Str("path", c.Path()).
                Str("uri", req.RequestURI).
                Int("status", status).
                Int64("bytes", c.Response().Size).
                Dur("latency", time.Since(start)).
                Str("ip", c.RealIP()).
                Msg("request")
            return nil
        }
    }
}
