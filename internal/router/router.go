package router // package router defines how HTTP routes are registered for the API

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/datepoll/internal/handler"
)

// RegisterRoutes registers the health check.  ping, when non-nil, probes the
// availability store.
func RegisterRoutes(e *echo.Echo, ping func(ctx context.Context) error) {
	e.GET("/healthz", handler.Health(ping))
}

// RegisterMeetings registers the meeting and availability API under
// /api/meetings.  mw is applied to the whole group, typically rate limiting
// followed by the response cache.
func RegisterMeetings(e *echo.Echo, h *handler.MeetingHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/api/meetings", mw...)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	// PATCH is accepted as an alias; both replace dates and optionally the
	// participant list.
	g.PUT("/:id", h.Update)
	g.PATCH("/:id", h.Update)
	g.POST("/:id/availability", h.UpsertAvailability)
	g.GET("/:id/top-dates", h.TopDates)
}

// RegisterShortLinks registers link creation and lookup plus the public
// /s/:code redirect.  Lookups are never cached because each one records an
// access.
func RegisterShortLinks(e *echo.Echo, h *handler.ShortLinkHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/api/shorten", mw...)
	g.POST("", h.Create)
	g.GET("", h.Resolve)
	e.GET("/s/:code", h.Redirect, mw...)
}
