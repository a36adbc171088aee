package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateSaveItemPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"user_id":"user-1",
		"platform":"youtube",
		"external_id":"dQw4w9WgXcQ",
		"title":"Never Gonna Give You Up",
		"duration_seconds":213,
		"published_at":"2009-10-25T06:57:33Z",
		"creator":{"name":"Rick Astley","handle":"RickAstleyVEVO"},
		"view_count":1400000000,
		"metadata":{"category":"Music"}
	}`)

	item, err := ValidateSaveItemPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %q", item.UserID)
	}
	if item.Platform == nil || *item.Platform != "youtube" {
		t.Fatalf("expected platform=youtube, got %v", item.Platform)
	}
	if item.Creator == nil || item.Creator.Name != "Rick Astley" {
		t.Fatalf("expected creator name to survive validation, got %+v", item.Creator)
	}
}

func TestValidateSaveItemPayload_URLOnly(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/some-article",
		"user_id":"user-2"
	}`)

	item, err := ValidateSaveItemPayload(payload)
	if err != nil {
		t.Fatalf("expected minimal payload to be valid, got error: %v", err)
	}
	if item.Platform != nil {
		t.Fatalf("expected no platform on minimal payload, got %v", *item.Platform)
	}
}

func TestValidateSaveItemPayload_MissingUserID(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/article"
	}`)

	_, err := ValidateSaveItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for missing user_id")
	}
}

func TestValidateSaveItemPayload_ExternalIDWithoutPlatform(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/article",
		"user_id":"user-3",
		"external_id":"abc123"
	}`)

	_, err := ValidateSaveItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for external_id without platform")
	}
	if !strings.Contains(err.Error(), "external_id requires platform") {
		t.Fatalf("expected external_id semantic error, got: %v", err)
	}
}

func TestValidateSaveItemPayload_UnknownPlatform(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/article",
		"user_id":"user-4",
		"platform":"myspace"
	}`)

	_, err := ValidateSaveItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown platform")
	}
}

func TestValidateSaveItemPayload_BadPublishedAt(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/article",
		"user_id":"user-5",
		"published_at":"yesterday"
	}`)

	_, err := ValidateSaveItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for invalid published_at")
	}
}

func TestValidateSaveItemPayload_CreatorNeedsNameOrHandle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/article",
		"user_id":"user-6",
		"creator":{"avatar_url":"https://example.com/a.png"}
	}`)

	_, err := ValidateSaveItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for creator without name or handle")
	}
}

func TestValidateSaveItemPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"url":"https://example.com/article",
		"user_id":"user-7"
	}{"extra":true}`)

	_, err := ValidateSaveItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for trailing JSON content")
	}
}
