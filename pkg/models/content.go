package models

import (
	"encoding/json"
	"time"
)

// SourceDescriptor describes a registered connector for discovery responses
type SourceDescriptor struct {
	Key          string   `json:"key"`
	Name         string   `json:"name"`
	AuthKind     string   `json:"auth_kind"`
	ContentTypes []string `json:"content_types"`
}

// NormalizedContent is the connector-neutral shape of one fetched item.
// Connectors translate their native payloads into this before staging.
type NormalizedContent struct {
	SourceItemID string          `json:"source_item_id"`
	ContentType  string          `json:"content_type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	MediaURL     string          `json:"media_url,omitempty"`
	OccurredAt   *time.Time      `json:"occurred_at,omitempty"`
	People       []PersonRef     `json:"people,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// PersonRef names a person mentioned by a content item
type PersonRef struct {
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
	Relation  string `json:"relation,omitempty"`
}

// TargetRecord is the payload sent to the platform when committing an item
type TargetRecord struct {
	DedupeKey   string          `json:"dedupe_key"`
	TargetType  string          `json:"target_type"`
	ContentType string          `json:"content_type"`
	Title       string          `json:"title"`
	OwnerID     string          `json:"owner_id"`
	Source      string          `json:"source"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Memorial is the platform's memorial page shape used by duplicate detection
type Memorial struct {
	ID           string   `json:"id"`
	GivenName    string   `json:"given_name"`
	Surname      string   `json:"surname"`
	BirthDate    string   `json:"birth_date,omitempty"`
	DeathDate    string   `json:"death_date,omitempty"`
	Contributors []string `json:"contributors,omitempty"`
}
