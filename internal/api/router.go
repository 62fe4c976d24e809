package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/cocosjn/warcvec/internal/api/controllers"
	"github.com/cocosjn/warcvec/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	searchCtrl := &controllers.SearchController{App: app}

	// Semantic search over the vector index
	e.GET("/search", searchCtrl.Handle)

	// Liveness probe
	e.GET("/healthz", searchCtrl.Health)
}
