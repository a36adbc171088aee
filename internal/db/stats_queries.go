package db

import (
	"context"
	"encoding/json"
	"fmt"

	"horse.fit/stash/internal/globaltime"
	"horse.fit/stash/internal/merge"
)

// StatsStore records resolution outcomes and aggregates catalog counts.
type StatsStore struct {
	pool *Pool
}

func NewStatsStore(pool *Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// RecordResolution appends one audit row for a save that went through the
// merge path. duplicateID is empty when the item was inserted as new.
func (s *StatsStore) RecordResolution(ctx context.Context, res merge.Resolution, duplicateID string, score float64) error {
	row := MergeEvent{
		PrimaryID: res.PrimaryID,
		Merged:    res.Merged,
		CreatedAt: globaltime.UTC(),
	}
	if duplicateID != "" && duplicateID != res.PrimaryID {
		value := duplicateID
		row.DuplicateID = &value
	}
	if res.Merged {
		value := score
		row.Score = &value
	}
	if len(res.Reasons) > 0 {
		encoded, err := json.Marshal(res.Reasons)
		if err != nil {
			return fmt.Errorf("encode resolution reasons: %w", err)
		}
		row.Reasons = encoded
	}
	if err := s.pool.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record resolution for %s: %w", res.PrimaryID, err)
	}
	return nil
}

// CatalogStats is the aggregate snapshot exposed by the stats command and
// endpoint.
type CatalogStats struct {
	TotalItems      int64            `json:"total_items"`
	ItemsByPlatform map[string]int64 `json:"items_by_platform"`
	TotalCreators   int64            `json:"total_creators"`
	TotalBookmarks  int64            `json:"total_bookmarks"`
	MergedItems     int64            `json:"merged_items"`
	LinkedItems     int64            `json:"linked_items"`
}

func (s *StatsStore) CatalogStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{
		ItemsByPlatform: make(map[string]int64),
	}

	rows, err := s.pool.Query(ctx, `SELECT platform, count(*) FROM stash.content_items GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("count items by platform: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var platform string
		var count int64
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, fmt.Errorf("scan platform count: %w", err)
		}
		stats.ItemsByPlatform[platform] = count
		stats.TotalItems += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platform counts: %w", err)
	}

	counts := []struct {
		dest  *int64
		label string
		sql   string
	}{
		{&stats.TotalCreators, "creators", `SELECT count(*) FROM stash.creators`},
		{&stats.TotalBookmarks, "bookmarks", `SELECT count(*) FROM stash.bookmarks`},
		{&stats.MergedItems, "merge events", `SELECT count(*) FROM stash.merge_events WHERE merged`},
		{&stats.LinkedItems, "linked items", `SELECT count(*) FROM stash.content_items WHERE cross_platform_matches IS NOT NULL AND cross_platform_matches <> '[]'::jsonb`},
	}
	for _, c := range counts {
		if err := s.pool.QueryRow(ctx, c.sql).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.label, err)
		}
	}

	return stats, nil
}
