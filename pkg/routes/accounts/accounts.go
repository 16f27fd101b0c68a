package accounts

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/willow/pkg/context"

	"github.com/Ramsey-B/willow/pkg/accounts"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/pipeline"
)

var validate = validator.New()

// Register registers connected account routes
func Register(g *echo.Group) {
	g.GET("", ListAccounts)
	g.POST("/connect", ConnectAccount)
	g.POST("/:id/sync", SyncAccount)
	g.DELETE("/:id", DisconnectAccount)
}

// ListAccounts lists the caller's connected accounts
func ListAccounts(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	ctx, service, err := ectoinject.GetContext[*accounts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, err := service.List(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ConnectedAccountListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// ConnectAccount validates credentials against a source and stores the account
func ConnectAccount(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	var req models.ConnectAccountRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, service, err := ectoinject.GetContext[*accounts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	account, err := service.Connect(ctx, userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, account)
}

// SyncAccount starts an import job for the account
func SyncAccount(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	accountID := c.Param("id")

	targetType := c.QueryParam("target_type")
	if targetType == "" {
		targetType = models.JobTargetMemorial
	}

	ctx, fetcher, err := ectoinject.GetContext[*pipeline.Fetcher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := fetcher.StartJob(ctx, accountID, userID, targetType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, job)
}

// DisconnectAccount soft-deletes the account
func DisconnectAccount(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	accountID := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*accounts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := service.Disconnect(ctx, accountID, userID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
