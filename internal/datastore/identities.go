package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GetIdentity retrieves an identity by id.
func (ds *DataStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	var identity Identity
	if err := ds.DB.WithContext(ctx).First(&identity, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &identity, nil
}

// ListIdentityEmbeddings returns id, embedding, and tracking fields of all
// identities, used to warm the in-process vector index at startup.
func (ds *DataStore) ListIdentityEmbeddings(ctx context.Context) ([]Identity, error) {
	var identities []Identity
	err := ds.DB.WithContext(ctx).
		Select("id", "embedding", "annotation_name", "is_tracked").
		Find(&identities).Error
	if err != nil {
		return nil, fmt.Errorf("listing identity embeddings: %w", err)
	}
	return identities, nil
}

// InsertIdentity persists a freshly minted identity.
func (ds *DataStore) InsertIdentity(ctx context.Context, identity *Identity) error {
	if err := ds.DB.WithContext(ctx).Create(identity).Error; err != nil {
		return fmt.Errorf("inserting identity %s: %w", identity.ID, err)
	}
	return nil
}

// UpdateIdentityEmbedding replaces the canonical embedding after EMA
// fusion, bumps the event counter, and refreshes last_seen_ms.
func (ds *DataStore) UpdateIdentityEmbedding(ctx context.Context, id string, embedding []float32, lastSeenMs int64) error {
	result := ds.DB.WithContext(ctx).Model(&Identity{}).Where("id = ?", id).Updates(map[string]any{
		"embedding":    FloatVector(embedding),
		"last_seen_ms": lastSeenMs,
		"count_events": gorm.Expr("count_events + 1"),
	})
	if result.Error != nil {
		return fmt.Errorf("updating identity %s embedding: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTracked flips the tracking flag for an identity. Setting the current
// value again is a no-op success.
func (ds *DataStore) SetTracked(ctx context.Context, id string, tracked bool) error {
	// Existence check first: UPDATE row counts differ between drivers when
	// the value does not change, so they cannot signal not-found.
	var count int64
	if err := ds.DB.WithContext(ctx).Model(&Identity{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("checking identity %s: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	err := ds.DB.WithContext(ctx).Model(&Identity{}).Where("id = ?", id).
		Update("is_tracked", tracked).Error
	if err != nil {
		return fmt.Errorf("setting is_tracked for %s: %w", id, err)
	}
	return nil
}

// GetTrackingInfo returns the tracking flag and display label for an
// identity. Unknown ids yield ErrNotFound.
func (ds *DataStore) GetTrackingInfo(ctx context.Context, id string) (bool, string, error) {
	var identity Identity
	err := ds.DB.WithContext(ctx).Select("is_tracked", "annotation_name").
		First(&identity, "id = ?", id).Error
	if err != nil {
		return false, "", notFoundOr(err)
	}
	return identity.IsTracked, identity.AnnotationName, nil
}
