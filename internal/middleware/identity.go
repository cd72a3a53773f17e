package middleware

// identity.go holds helpers shared across middleware files for naming the
// caller of a request.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/datepoll/internal/session"
)

// callerID names the caller for rate limiting.  A participant with a valid
// session token is "meetingID/participant"; everyone else is "anon".
func callerID(c echo.Context) string {
    id, ok := session.FromContext(c.Request().Context())
    if !ok {
        return "anon"
    }
    return id.MeetingID + "/" + id.Participant
}
