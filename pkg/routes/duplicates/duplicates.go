package duplicates

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/willow/pkg/context"

	"github.com/Ramsey-B/willow/pkg/dedup"
	"github.com/Ramsey-B/willow/pkg/models"
)

var validate = validator.New()

// Register registers duplicate report routes
func Register(g *echo.Group) {
	g.GET("", ListReports)
	g.POST("/scan", RunScan)
	g.POST("/:id/resolve", ResolveReport)
}

// ListReports lists duplicate reports, optionally filtered by status
func ListReports(c echo.Context) error {
	ctx := c.Request().Context()

	var status *string
	if s := c.QueryParam("status"); s != "" {
		status = &s
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, detector, err := ectoinject.GetContext[*dedup.Detector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	reports, err := detector.ListReports(ctx, status, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.DuplicateReportListResponse{
		Items:      reports,
		TotalCount: len(reports),
	})
}

// RunScan triggers a duplicate scan pass
func RunScan(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, detector, err := ectoinject.GetContext[*dedup.Detector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := detector.Scan(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ResolveReport merges or rejects a duplicate report
func ResolveReport(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	reportID := c.Param("id")

	var req models.ResolveReportRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, detector, err := ectoinject.GetContext[*dedup.Detector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	report, err := detector.Resolve(ctx, reportID, userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}
