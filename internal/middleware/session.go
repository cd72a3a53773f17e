package middleware

import (
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/datepoll/internal/logging"
    "github.com/iliyamo/datepoll/internal/session"
)

// Session reads an optional "Authorization: Bearer <token>" header and, when
// the token verifies, attaches the participant identity to the request
// context.  Requests without a token, or with one that fails to verify,
// continue anonymously: every endpoint is public and the identity only
// matters for lock enforcement.
func Session(issuer *session.Issuer) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return next(c)
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
            req := c.Request()
            id, err := issuer.Parse(raw)
            if err != nil {
                logging.FromContext(req.Context()).Debug().Err(err).Msg("ignoring session token")
                return next(c)
            }
            c.SetRequest(req.WithContext(session.WithIdentity(req.Context(), id)))
            return next(c)
        }
    }
}
