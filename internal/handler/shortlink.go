package handler

import (
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/datepoll/internal/service"
    "github.com/iliyamo/datepoll/internal/shortlink"
)

// ShortLinkHandler serves /api/shorten and the /s/:code redirect.
type ShortLinkHandler struct {
    Links   *service.ShortLinkService
    BaseURL string
}

func NewShortLinkHandler(links *service.ShortLinkService, baseURL string) *ShortLinkHandler {
    if links == nil {
        panic("nil service passed to NewShortLinkHandler")
    }
    return &ShortLinkHandler{Links: links, BaseURL: strings.TrimRight(baseURL, "/")}
}

type shortenRequest struct {
    URL string `json:"url"`
}

// Create handles POST /api/shorten.
func (h *ShortLinkHandler) Create(c echo.Context) error {
    var req shortenRequest
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid JSON body")
    }
    l, err := h.Links.Create(c.Request().Context(), req.URL)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "success":   true,
        "shortUrl":  h.Links.ShortURL(l.Code),
        "shortCode": l.Code,
    })
}

// Resolve handles GET /api/shorten?code=X and returns the compact template.
func (h *ShortLinkHandler) Resolve(c echo.Context) error {
    code := strings.TrimSpace(c.QueryParam("code"))
    if code == "" {
        return badRequest(c, "code is required")
    }
    params, err := h.Links.Resolve(c.Request().Context(), code)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": params})
}

// Redirect handles GET /s/:code by sending the browser to the app with the
// template restored as query parameters.  Unknown codes land on the app root.
func (h *ShortLinkHandler) Redirect(c echo.Context) error {
    params, err := h.Links.Resolve(c.Request().Context(), c.Param("code"))
    if errors.Is(err, service.ErrNotFound) {
        return c.Redirect(http.StatusFound, h.BaseURL+"/")
    }
    if err != nil {
        return respondError(c, err)
    }
    target := h.BaseURL + "/"
    if q := shortlink.Values(params).Encode(); q != "" {
        target += "?" + q
    }
    return c.Redirect(http.StatusFound, target)
}
