package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed save_item.schema.json
var saveItemSchemaJSON string

// SaveCreator is the raw creator attribution attached to a save payload.
type SaveCreator struct {
	Name       string `json:"name,omitempty"`
	Handle     string `json:"handle,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// SaveItem is the v1 save payload after schema and semantic validation.
type SaveItem struct {
	PayloadVersion  string         `json:"payload_version"`
	URL             string         `json:"url"`
	UserID          string         `json:"user_id"`
	Platform        *string        `json:"platform,omitempty"`
	ExternalID      *string        `json:"external_id,omitempty"`
	Title           *string        `json:"title,omitempty"`
	Description     *string        `json:"description,omitempty"`
	ThumbnailURL    *string        `json:"thumbnail_url,omitempty"`
	DurationSeconds *int           `json:"duration_seconds,omitempty"`
	PublishedAt     *string        `json:"published_at,omitempty"`
	Language        *string        `json:"language,omitempty"`
	Creator         *SaveCreator   `json:"creator,omitempty"`
	SeriesName      *string        `json:"series_name,omitempty"`
	EpisodeNumber   *int           `json:"episode_number,omitempty"`
	EpisodeGUID     *string        `json:"episode_guid,omitempty"`
	ViewCount       *int64         `json:"view_count,omitempty"`
	LikeCount       *int64         `json:"like_count,omitempty"`
	CommentCount    *int64         `json:"comment_count,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Notes           *string        `json:"notes,omitempty"`
	FeedSlug        *string        `json:"feed_slug,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateSaveItemPayload(payload json.RawMessage) (*SaveItem, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item SaveItem
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("save_item.schema.json", strings.NewReader(saveItemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("save_item.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *SaveItem) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(item.UserID) == "" {
		return fmt.Errorf("user_id must not be empty")
	}
	if err := validateURI("url", item.URL); err != nil {
		return err
	}

	// external_id without a platform tag cannot be attributed.
	if item.ExternalID != nil && strings.TrimSpace(*item.ExternalID) != "" {
		if item.Platform == nil || strings.TrimSpace(*item.Platform) == "" {
			return fmt.Errorf("external_id requires platform")
		}
	}

	if item.ThumbnailURL != nil && strings.TrimSpace(*item.ThumbnailURL) != "" {
		if err := validateURI("thumbnail_url", *item.ThumbnailURL); err != nil {
			return err
		}
	}
	if item.PublishedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PublishedAt)); err != nil {
			return fmt.Errorf("published_at must be RFC3339: %w", err)
		}
	}

	if item.Creator != nil {
		name := strings.TrimSpace(item.Creator.Name)
		handle := strings.TrimSpace(item.Creator.Handle)
		if name == "" && handle == "" {
			return fmt.Errorf("creator requires a name or handle")
		}
	}

	if item.FeedSlug != nil {
		slug := strings.TrimSpace(*item.FeedSlug)
		if slug == "" {
			return fmt.Errorf("feed_slug must not be empty when present")
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
