package target

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/httpclient"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// HTTPClient talks to the platform API over HTTP with service token auth
type HTTPClient struct {
	baseURL string
	token   string
	client  *httpclient.Client
	logger  ectologger.Logger
}

// Config holds platform API client configuration
type Config struct {
	BaseURL string
	Token   string
}

// NewHTTPClient creates a platform API client
func NewHTTPClient(cfg Config, client *httpclient.Client, logger ectologger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  client,
		logger:  logger,
	}
}

func (c *HTTPClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// CreateRecord commits one record to the platform
func (c *HTTPClient) CreateRecord(ctx context.Context, record *models.TargetRecord) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "target.HTTPClient.CreateRecord")
	defer span.End()

	body, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	resp, err := c.client.Post(ctx, c.baseURL+"/internal/v1/records", body, c.headers())
	if err != nil {
		metrics.TargetRequestsTotal.WithLabelValues("create_record", "unavailable").Inc()
		return "", fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(resp.Body, &created); err != nil {
			metrics.TargetRequestsTotal.WithLabelValues("create_record", "error").Inc()
			return "", fmt.Errorf("%w: malformed create response", models.ErrUpstreamUnavailable)
		}
		metrics.TargetRequestsTotal.WithLabelValues("create_record", "ok").Inc()
		return created.ID, nil
	case http.StatusConflict:
		metrics.TargetRequestsTotal.WithLabelValues("create_record", "conflict").Inc()
		return "", models.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		metrics.TargetRequestsTotal.WithLabelValues("create_record", "invalid").Inc()
		c.logger.WithContext(ctx).WithFields(map[string]any{"status": resp.StatusCode, "body": string(resp.Body)}).Warn("Platform rejected record")
		return "", models.ErrValidation
	default:
		metrics.TargetRequestsTotal.WithLabelValues("create_record", "error").Inc()
		if resp.StatusCode >= 500 {
			return "", models.ErrUpstreamUnavailable
		}
		return "", fmt.Errorf("%w: unexpected status %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	}
}

// ListMemorials pages through the platform's memorials
func (c *HTTPClient) ListMemorials(ctx context.Context, page, pageSize int) ([]models.Memorial, error) {
	ctx, span := tracing.StartSpan(ctx, "target.HTTPClient.ListMemorials")
	defer span.End()

	query := url.Values{}
	query.Set("page", fmt.Sprint(page))
	query.Set("page_size", fmt.Sprint(pageSize))

	resp, err := c.client.Get(ctx, c.baseURL+"/internal/v1/memorials?"+query.Encode(), c.headers())
	if err != nil {
		metrics.TargetRequestsTotal.WithLabelValues("list_memorials", "unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.TargetRequestsTotal.WithLabelValues("list_memorials", "error").Inc()
		return nil, fmt.Errorf("%w: unexpected status %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var result struct {
		Items []models.Memorial `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		metrics.TargetRequestsTotal.WithLabelValues("list_memorials", "error").Inc()
		return nil, fmt.Errorf("%w: malformed memorials response", models.ErrUpstreamUnavailable)
	}

	metrics.TargetRequestsTotal.WithLabelValues("list_memorials", "ok").Inc()
	return result.Items, nil
}

// MergeMemorials folds the absorbed memorial into the survivor
func (c *HTTPClient) MergeMemorials(ctx context.Context, survivorID, absorbedID string) error {
	ctx, span := tracing.StartSpan(ctx, "target.HTTPClient.MergeMemorials")
	defer span.End()

	body, err := json.Marshal(map[string]string{
		"survivor_id": survivorID,
		"absorbed_id": absorbedID,
	})
	if err != nil {
		return err
	}

	resp, err := c.client.Post(ctx, c.baseURL+"/internal/v1/memorials/merge", body, c.headers())
	if err != nil {
		metrics.TargetRequestsTotal.WithLabelValues("merge_memorials", "unavailable").Inc()
		return fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		metrics.TargetRequestsTotal.WithLabelValues("merge_memorials", "ok").Inc()
		return nil
	case http.StatusNotFound:
		metrics.TargetRequestsTotal.WithLabelValues("merge_memorials", "not_found").Inc()
		return models.ErrNotFound
	default:
		metrics.TargetRequestsTotal.WithLabelValues("merge_memorials", "error").Inc()
		c.logger.WithContext(ctx).WithFields(map[string]any{"status": resp.StatusCode, "survivor_id": survivorID, "absorbed_id": absorbedID}).Error("Platform merge failed")
		return fmt.Errorf("%w: unexpected status %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	}
}
