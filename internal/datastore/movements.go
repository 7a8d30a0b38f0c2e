package datastore

import (
	"context"
	"fmt"
)

// SaveMovement appends a movement notification record.
func (ds *DataStore) SaveMovement(ctx context.Context, movement *Movement) error {
	if err := ds.DB.WithContext(ctx).Create(movement).Error; err != nil {
		return fmt.Errorf("saving movement for %s: %w", movement.ResolvedID, err)
	}
	return nil
}

// LastMovement returns the most recent movement record for an identity,
// or ErrNotFound when none exist.
func (ds *DataStore) LastMovement(ctx context.Context, resolvedID string) (*Movement, error) {
	var movement Movement
	err := ds.DB.WithContext(ctx).
		Where("resolved_id = ?", resolvedID).
		Order("ts_ms DESC").
		First(&movement).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &movement, nil
}
