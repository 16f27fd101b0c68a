package jobs

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/willow/pkg/context"

	"github.com/Ramsey-B/willow/internal/repositories/importjob"
	"github.com/Ramsey-B/willow/internal/repositories/stageditem"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/pipeline"
)

var validate = validator.New()

// Register registers import job routes
func Register(g *echo.Group) {
	g.POST("", CreateJob)
	g.GET("", ListJobs)
	g.GET("/:id", GetJob)
	g.GET("/:id/items", ListJobItems)
	g.POST("/:id/commit", CommitJob)
	g.POST("/:id/retry", RetryJob)
}

// RegisterItems registers staged item routes
func RegisterItems(g *echo.Group) {
	g.POST("/:id/toggle", ToggleItem)
}

// CreateJob starts an import job for a connected account
func CreateJob(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	var req models.CreateImportJobRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, fetcher, err := ectoinject.GetContext[*pipeline.Fetcher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := fetcher.StartJob(ctx, req.AccountID, userID, req.TargetType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, job)
}

// ListJobs lists the caller's import jobs
func ListJobs(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*importjob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	jobs, err := repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, jobs)
}

// GetJob gets an import job with its progress counters
func GetJob(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	jobID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*importjob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return models.ErrNotFound
	}

	return c.JSON(http.StatusOK, job)
}

// ListJobItems lists a job's staged items with pagination
func ListJobItems(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	jobID := c.Param("id")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	var contentType *string
	if ct := c.QueryParam("content_type"); ct != "" {
		contentType = &ct
	}

	ctx, jobRepo, err := ectoinject.GetContext[*importjob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := jobRepo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return models.ErrNotFound
	}

	ctx, itemRepo, err := ectoinject.GetContext[*stageditem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, err := itemRepo.ListByJob(ctx, jobID, contentType, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

// ToggleItem sets the durable selection flag on a staged item
func ToggleItem(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	itemID := c.Param("id")

	var req models.ToggleItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, itemRepo, err := ectoinject.GetContext[*stageditem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	item, err := itemRepo.Get(ctx, itemID)
	if err != nil {
		return err
	}

	ctx, jobRepo, err := ectoinject.GetContext[*importjob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := jobRepo.Get(ctx, item.JobID)
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return models.ErrNotFound
	}

	updated, err := itemRepo.SetSelected(ctx, itemID, req.Selected)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// CommitJob runs the commit pass over a job's selected items
func CommitJob(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	jobID := c.Param("id")

	ctx, committer, err := ectoinject.GetContext[*pipeline.Committer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := committer.Commit(ctx, jobID, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// RetryJob re-attempts a job's failed items
func RetryJob(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	jobID := c.Param("id")

	ctx, committer, err := ectoinject.GetContext[*pipeline.Committer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := committer.Retry(ctx, jobID, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
