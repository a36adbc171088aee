package db

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm/clause"

	"horse.fit/stash/internal/catalog"
)

// CreatorStore persists resolved creator identities.
type CreatorStore struct {
	pool *Pool
}

func NewCreatorStore(pool *Pool) *CreatorStore {
	return &CreatorStore{pool: pool}
}

// UpsertCreator writes a creator, replacing every mutable column when the
// id already exists. The resolver owns merge semantics; the store only
// persists its output.
func (s *CreatorStore) UpsertCreator(ctx context.Context, creator *catalog.Creator) error {
	row, err := creatorDomainToRow(creator)
	if err != nil {
		return err
	}
	err = s.pool.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "handle", "url", "avatar_url",
				"platforms", "external_links", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert creator %s: %w", creator.ID, err)
	}
	return nil
}

func (s *CreatorStore) GetCreator(ctx context.Context, id string) (*catalog.Creator, error) {
	var row Creator
	err := s.pool.gdb.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get creator %s: %w", id, err)
	}
	creator, err := creatorRowToDomain(row)
	if err != nil {
		return nil, err
	}
	return &creator, nil
}

// ListCreators returns every stored creator in insertion order. The
// resolver cache is seeded from this at startup and per save request.
func (s *CreatorStore) ListCreators(ctx context.Context) ([]catalog.Creator, error) {
	var rows []Creator
	err := s.pool.gdb.WithContext(ctx).Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	creators := make([]catalog.Creator, 0, len(rows))
	for _, row := range rows {
		creator, err := creatorRowToDomain(row)
		if err != nil {
			return nil, err
		}
		creators = append(creators, creator)
	}
	return creators, nil
}

func creatorRowToDomain(row Creator) (catalog.Creator, error) {
	creator := catalog.Creator{
		ID:        row.ID,
		Name:      row.Name,
		Handle:    row.Handle,
		URL:       row.URL,
		AvatarURL: row.AvatarURL,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Platforms) > 0 {
		if err := json.Unmarshal(row.Platforms, &creator.Platforms); err != nil {
			return catalog.Creator{}, fmt.Errorf("decode platforms for creator %s: %w", row.ID, err)
		}
	}
	if len(row.ExternalLinks) > 0 {
		if err := json.Unmarshal(row.ExternalLinks, &creator.ExternalLinks); err != nil {
			return catalog.Creator{}, fmt.Errorf("decode external links for creator %s: %w", row.ID, err)
		}
	}
	return creator, nil
}

func creatorDomainToRow(creator *catalog.Creator) (Creator, error) {
	row := Creator{
		ID:        creator.ID,
		Name:      creator.Name,
		Handle:    creator.Handle,
		URL:       creator.URL,
		AvatarURL: creator.AvatarURL,
		CreatedAt: creator.CreatedAt,
		UpdatedAt: creator.UpdatedAt,
	}
	if len(creator.Platforms) > 0 {
		encoded, err := json.Marshal(creator.Platforms)
		if err != nil {
			return Creator{}, fmt.Errorf("encode platforms for creator %s: %w", creator.ID, err)
		}
		row.Platforms = encoded
	}
	if len(creator.ExternalLinks) > 0 {
		encoded, err := json.Marshal(creator.ExternalLinks)
		if err != nil {
			return Creator{}, fmt.Errorf("encode external links for creator %s: %w", creator.ID, err)
		}
		row.ExternalLinks = encoded
	}
	return row, nil
}
