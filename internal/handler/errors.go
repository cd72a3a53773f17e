package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/datepoll/internal/logging"
    "github.com/iliyamo/datepoll/internal/service"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
    Error   string            `json:"error"`
    Message string            `json:"message"`
    Fields  map[string]string `json:"fields,omitempty"`
}

func badRequest(c echo.Context, message string) error {
    return c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: message})
}

// respondError maps service errors to HTTP responses.  Anything it does not
// recognise is logged and reported as a generic 500 so storage details never
// reach clients.
func respondError(c echo.Context, err error) error {
    var v *service.ValidationError
    switch {
    case errors.As(err, &v):
        return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: v.Error(), Fields: v.FieldErrors})
    case errors.Is(err, service.ErrNotFound):
        return c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "not found"})
    case errors.Is(err, service.ErrLocked):
        return c.JSON(http.StatusLocked, errorBody{Error: "locked", Message: err.Error()})
    }
    logging.FromContext(c.Request().Context()).Error().Err(err).
        Str("method", c.Request().Method).Str("path", c.Path()).Msg("request failed")
    return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
}
