package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/stash/internal/canonical"
	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/db"
	payloadschema "horse.fit/stash/schema"
)

const maxSavePayloadBytes = 256 * 1024

func (s *Server) handleSave(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSavePayloadBytes+1))
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to read request body", nil)
	}
	if len(body) > maxSavePayloadBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "Payload too large", nil)
	}

	payload, err := payloadschema.ValidateSaveItemPayload(json.RawMessage(body))
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid save payload", map[string]any{
			"reason": err.Error(),
		})
	}

	result, err := s.saver.Save(c.Request().Context(), payload)
	if err != nil {
		s.logger.Error().Err(err).Str("url", payload.URL).Msg("save failed")
		return internalError(c, "Failed to process save")
	}

	status := http.StatusCreated
	if result.Merged {
		status = http.StatusOK
	}
	return successWithStatus(c, status, result)
}

type canonicalizeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCanonicalize(c echo.Context) error {
	var req canonicalizeRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", nil)
	}
	if strings.TrimSpace(req.URL) == "" {
		return fail(c, http.StatusBadRequest, "url is required", nil)
	}

	result := canonical.Canonicalize(req.URL)
	return success(c, map[string]any{
		"url":       req.URL,
		"canonical": result.Normalized,
		"domain":    result.Domain,
		"platform":  result.Platform,
	})
}

func (s *Server) handleItems(c echo.Context) error {
	platform := strings.TrimSpace(c.QueryParam("platform"))
	if platform != "" && !catalog.IsKnownPlatform(platform) {
		return fail(c, http.StatusBadRequest, "Unknown platform", nil)
	}

	limit := defaultListLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer", nil)
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	items, err := s.contents.ListItems(c.Request().Context(), db.ContentListOptions{
		Platform: platform,
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("list items failed")
		return internalError(c, "Failed to load items")
	}

	return success(c, map[string]any{
		"items": buildItemResponses(items),
	})
}

func (s *Server) handleItemDetail(c echo.Context) error {
	contentID := strings.TrimSpace(c.Param("content_id"))
	if contentID == "" {
		return fail(c, http.StatusBadRequest, "content id is required", nil)
	}

	item, err := s.contents.GetItem(c.Request().Context(), contentID)
	if err != nil {
		s.logger.Error().Err(err).Str("content_id", contentID).Msg("load item failed")
		return internalError(c, "Failed to load item")
	}
	if item == nil {
		return failNotFound(c, "Content item not found")
	}

	return success(c, buildItemResponse(*item))
}

func (s *Server) handleCreators(c echo.Context) error {
	creators, err := s.creators.ListCreators(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list creators failed")
		return internalError(c, "Failed to load creators")
	}
	return success(c, map[string]any{
		"creators": creators,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.stats.CatalogStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}
