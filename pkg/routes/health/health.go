package health

import (
	"net/http"

	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/redis"
)

// Register registers health check routes
func Register(e *echo.Echo) {
	e.GET("/health", Health)
	e.GET("/ready", Ready)
}

// Health reports process liveness
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether downstream dependencies are reachable
func Ready(c echo.Context) error {
	ctx := c.Request().Context()

	checks := map[string]string{}
	healthy := true

	if ctx, db, err := ectoinject.GetContext[database.DB](ctx); err == nil {
		if err := db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if ctx, rdb, err := ectoinject.GetContext[*redis.Client](ctx); err == nil {
		if err := rdb.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, checks)
}
