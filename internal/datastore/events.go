package datastore

import (
	"context"
	"fmt"
)

// SaveDetectionEvent persists a raw detection event. Called with
// ResolvedID unset; resolution attaches it separately within the same
// transaction scope.
func (ds *DataStore) SaveDetectionEvent(ctx context.Context, event *DetectionEvent) error {
	if err := ds.DB.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("saving detection event track=%s: %w", event.TrackID, err)
	}
	return nil
}

// SetDetectionResolved attaches the resolved identity to a persisted
// detection event. This happens exactly once per event.
func (ds *DataStore) SetDetectionResolved(ctx context.Context, eventID uint, resolvedID string) error {
	result := ds.DB.WithContext(ctx).Model(&DetectionEvent{}).Where("id = ?", eventID).
		Update("resolved_id", resolvedID)
	if result.Error != nil {
		return fmt.Errorf("setting resolved_id on event %d: %w", eventID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
