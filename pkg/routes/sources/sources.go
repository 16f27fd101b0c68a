package sources

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/accounts"
)

// Register registers source discovery routes
func Register(g *echo.Group) {
	g.GET("", ListSources)
}

// ListSources lists the available content sources
func ListSources(c echo.Context) error {
	ctx := c.Request().Context()

	_, service, err := ectoinject.GetContext[*accounts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, service.ListSources())
}
