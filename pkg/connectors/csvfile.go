package connectors

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/fingerprint"
	"github.com/Ramsey-B/willow/pkg/models"
)

// CSVCredentials carry an uploaded content export file
type CSVCredentials struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// csvColumns is the required header set for content exports
var csvColumns = []string{"id", "type", "title"}

// CSVConnector imports content rows from uploaded CSV content exports.
// Expected columns: id, type, title, plus optional description, media_url,
// date (RFC 3339 or YYYY-MM-DD).
type CSVConnector struct {
	logger ectologger.Logger
}

// NewCSVConnector creates a CSV export connector
func NewCSVConnector(logger ectologger.Logger) *CSVConnector {
	return &CSVConnector{logger: logger}
}

// Descriptor returns the connector's discovery metadata
func (c *CSVConnector) Descriptor() models.SourceDescriptor {
	return models.SourceDescriptor{
		Key:          "csv",
		Name:         "CSV Content Export",
		AuthKind:     "upload",
		ContentTypes: []string{
			models.ContentTypePhoto,
			models.ContentTypeVideo,
			models.ContentTypeText,
			models.ContentTypePost,
			models.ContentTypeStory,
			models.ContentTypeMemory,
			models.ContentTypeDocument,
		},
	}
}

// Authenticate validates the uploaded file has the required header
func (c *CSVConnector) Authenticate(ctx context.Context, credentials json.RawMessage) (*AccountInfo, error) {
	creds, err := c.parseCredentials(credentials)
	if err != nil {
		return nil, err
	}

	header, err := csv.NewReader(strings.NewReader(creds.Content)).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable CSV header", models.ErrAuth)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	name := creds.FileName
	if name == "" {
		name = "uploaded export"
	}

	return &AccountInfo{
		ExternalAccountID: fingerprint.DedupeKey("csv", name, contentHash(creds.Content)),
		DisplayName:       name,
	}, nil
}

// Fetch parses the uploaded file and streams its rows as content items
func (c *CSVConnector) Fetch(ctx context.Context, credentials json.RawMessage) (Sequence, error) {
	creds, err := c.parseCredentials(credentials)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(creds.Content))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable CSV header", models.ErrAuth)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var items []models.NormalizedContent
	rowNum := 1
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		rowNum++

		item, err := csvRowToContent(columns, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		items = append(items, *item)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{"file": creds.FileName, "items": len(items)}).Info("Parsed CSV export")
	return &sliceSequence{items: items}, nil
}

func (c *CSVConnector) parseCredentials(credentials json.RawMessage) (*CSVCredentials, error) {
	var creds CSVCredentials
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials payload", models.ErrAuth)
	}
	if creds.Content == "" {
		return nil, fmt.Errorf("%w: empty file content", models.ErrAuth)
	}
	return &creds, nil
}

func validateHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, required := range csvColumns {
		if !present[required] {
			return fmt.Errorf("%w: missing column %q", models.ErrAuth, required)
		}
	}
	return nil
}

func csvRowToContent(columns map[string]int, row []string) (*models.NormalizedContent, error) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id := get("id")
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}

	contentType := strings.ToLower(get("type"))
	switch contentType {
	case models.ContentTypePhoto, models.ContentTypeVideo, models.ContentTypeText,
		models.ContentTypePost, models.ContentTypeStory, models.ContentTypeMemory,
		models.ContentTypeDocument:
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	item := models.NormalizedContent{
		SourceItemID: id,
		ContentType:  contentType,
		Title:        get("title"),
		Description:  get("description"),
		MediaURL:     get("media_url"),
	}

	if date := get("date"); date != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, date); err == nil {
				item.OccurredAt = &t
				break
			}
		}
	}

	data := map[string]any{
		"title": item.Title,
	}
	if item.Description != "" {
		data["description"] = item.Description
	}
	if item.MediaURL != "" {
		data["media_url"] = item.MediaURL
	}
	item.Data = mustJSON(data)

	return &item, nil
}
