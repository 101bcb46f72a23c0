// Package router registers the HTTP routes of the seating API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seating/internal/handler"
	"github.com/iliyamo/flight-seating/internal/middleware"
	"github.com/iliyamo/flight-seating/internal/utils"
)

// RegisterRoutes registers routes that need no flight actor.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// FlightMiddleware carries the optional middleware of the flight routes.
// Nil entries are skipped.
type FlightMiddleware struct {
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// RegisterFlights registers the demo route and the /v1/flights group.
// Initializing seats requires an operator token signed with jwtSecret.
func RegisterFlights(e *echo.Echo, h *handler.FlightHandler, jwtSecret string, mw FlightMiddleware) {
	e.GET("/", h.Demo)

	g := e.Group("/v1/flights/:key")
	g.GET("/seats", h.Available, optional(mw.Cache)...)
	g.POST("/seats", h.Initialize,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleOperator),
	)
	g.PUT("/seats/:seat", h.Assign, optional(mw.RateLimit)...)
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
