package datastore

import (
	"context"
	"fmt"
)

// GetAnomalyEpisode fetches the episode row by its stable key.
func (ds *DataStore) GetAnomalyEpisode(ctx context.Context, episode string) (*AnomalyEpisode, error) {
	var row AnomalyEpisode
	err := ds.DB.WithContext(ctx).First(&row, "episode = ?", episode).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &row, nil
}

// SaveAnomalyEpisode creates or updates the episode row. Merge rules live
// in the anomaly recorder; this only persists the merged result.
func (ds *DataStore) SaveAnomalyEpisode(ctx context.Context, row *AnomalyEpisode) error {
	if err := ds.DB.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("saving anomaly episode %s: %w", row.Episode, err)
	}
	return nil
}

// LastAnomalyEpisode returns the most recent episode by start time, or
// ErrNotFound when the store is empty.
func (ds *DataStore) LastAnomalyEpisode(ctx context.Context) (*AnomalyEpisode, error) {
	var row AnomalyEpisode
	err := ds.DB.WithContext(ctx).Order("start_ms DESC").First(&row).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &row, nil
}
