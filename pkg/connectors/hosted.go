package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/httpclient"
	"github.com/Ramsey-B/willow/pkg/models"
)

// HostedCredentials carry an API token for a hosted content source
type HostedCredentials struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// HostedConnector pulls photos and stories from hosted memorial and photo
// sharing sites that expose a token-authenticated items API.
type HostedConnector struct {
	key      string
	name     string
	client   *httpclient.Client
	pageSize int
	logger   ectologger.Logger
}

// NewHostedConnector creates a connector for one hosted source
func NewHostedConnector(key, name string, client *httpclient.Client, pageSize int, logger ectologger.Logger) *HostedConnector {
	if pageSize < 1 {
		pageSize = 100
	}
	return &HostedConnector{
		key:      key,
		name:     name,
		client:   client,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Descriptor returns the connector's discovery metadata
func (c *HostedConnector) Descriptor() models.SourceDescriptor {
	return models.SourceDescriptor{
		Key:          c.key,
		Name:         c.name,
		AuthKind:     "token",
		ContentTypes: []string{
			models.ContentTypePhoto,
			models.ContentTypeVideo,
			models.ContentTypeText,
			models.ContentTypePost,
			models.ContentTypeStory,
			models.ContentTypeMemory,
		},
	}
}

// hostedAccount is the remote /me response
type hostedAccount struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// hostedItem is one remote content item
type hostedItem struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MediaURL    string `json:"media_url"`
	TakenAt     string `json:"taken_at"`
}

// hostedPage is one page of the remote items API
type hostedPage struct {
	Items      []hostedItem `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// Authenticate resolves the account behind the token
func (c *HostedConnector) Authenticate(ctx context.Context, credentials json.RawMessage) (*AccountInfo, error) {
	creds, err := c.parseCredentials(credentials)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Get(ctx, creds.BaseURL+"/api/v1/me", authHeaders(creds.Token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if err := c.checkStatus(resp.StatusCode, models.ErrAuth); err != nil {
		return nil, err
	}

	var account hostedAccount
	if err := json.Unmarshal(resp.Body, &account); err != nil {
		return nil, fmt.Errorf("%w: malformed account response", models.ErrUpstreamUnavailable)
	}

	return &AccountInfo{
		ExternalAccountID: account.ID,
		DisplayName:       account.DisplayName,
	}, nil
}

// Fetch opens a lazily paginated stream over the account's items
func (c *HostedConnector) Fetch(ctx context.Context, credentials json.RawMessage) (Sequence, error) {
	creds, err := c.parseCredentials(credentials)
	if err != nil {
		return nil, err
	}

	return &hostedSequence{connector: c, creds: creds}, nil
}

func (c *HostedConnector) parseCredentials(credentials json.RawMessage) (*HostedCredentials, error) {
	var creds HostedCredentials
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials payload", models.ErrAuth)
	}
	if creds.Token == "" || creds.BaseURL == "" {
		return nil, fmt.Errorf("%w: token and base_url are required", models.ErrAuth)
	}
	return &creds, nil
}

// checkStatus maps remote status codes to domain errors. authErr picks which
// error a 401/403 means in context: rejected new credentials vs stale ones.
func (c *HostedConnector) checkStatus(statusCode int, authErr error) error {
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return authErr
	case statusCode >= 500:
		return models.ErrUpstreamUnavailable
	default:
		return fmt.Errorf("%w: unexpected status %d", models.ErrUpstreamUnavailable, statusCode)
	}
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// hostedSequence walks the remote items API page by page, fetching the next
// page only when the current one is drained
type hostedSequence struct {
	connector *HostedConnector
	creds     *HostedCredentials
	buffer    []hostedItem
	cursor    string
	done      bool
}

func (s *hostedSequence) Next(ctx context.Context) (*models.NormalizedContent, error) {
	if len(s.buffer) == 0 {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(s.buffer) == 0 {
			return nil, io.EOF
		}
	}

	item := s.buffer[0]
	s.buffer = s.buffer[1:]
	return s.toContent(item)
}

func (s *hostedSequence) fetchPage(ctx context.Context) error {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(s.connector.pageSize))
	if s.cursor != "" {
		query.Set("cursor", s.cursor)
	}

	resp, err := s.connector.client.Get(ctx, s.creds.BaseURL+"/api/v1/items?"+query.Encode(), authHeaders(s.creds.Token))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if err := s.connector.checkStatus(resp.StatusCode, models.ErrStaleCredentials); err != nil {
		return err
	}

	var page hostedPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return fmt.Errorf("%w: malformed items response", models.ErrUpstreamUnavailable)
	}

	s.buffer = page.Items
	s.cursor = page.NextCursor
	if page.NextCursor == "" {
		s.done = true
	}
	return nil
}

func (s *hostedSequence) toContent(item hostedItem) (*models.NormalizedContent, error) {
	var contentType string
	switch item.Kind {
	case models.ContentTypeVideo, models.ContentTypeText, models.ContentTypePost,
		models.ContentTypeStory, models.ContentTypeMemory:
		contentType = item.Kind
	default:
		// Unrecognized kinds from older source APIs carry media; treat as photos.
		contentType = models.ContentTypePhoto
	}

	content := models.NormalizedContent{
		SourceItemID: item.ID,
		ContentType:  contentType,
		Title:        item.Title,
		Description:  item.Description,
		MediaURL:     item.MediaURL,
	}

	if item.TakenAt != "" {
		if t, err := time.Parse(time.RFC3339, item.TakenAt); err == nil {
			content.OccurredAt = &t
		}
	}

	data := map[string]any{"title": item.Title}
	if item.Description != "" {
		data["description"] = item.Description
	}
	if item.MediaURL != "" {
		data["media_url"] = item.MediaURL
	}
	content.Data = mustJSON(data)

	return &content, nil
}
