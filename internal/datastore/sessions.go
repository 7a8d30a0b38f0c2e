package datastore

import (
	"context"
	"fmt"
)

// FindOpenSession returns the most recently opened session with no
// disappearance for the (track, location, camera) triple, or ErrNotFound.
func (ds *DataStore) FindOpenSession(ctx context.Context, trackID, locationID, cameraID string) (*PresenceSession, error) {
	var session PresenceSession
	err := ds.DB.WithContext(ctx).
		Where("track_id = ? AND location_id = ? AND camera_id = ? AND disappear_ms IS NULL",
			trackID, locationID, cameraID).
		Order("appear_ms DESC").
		First(&session).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &session, nil
}

// SaveSession creates or updates a presence session row.
func (ds *DataStore) SaveSession(ctx context.Context, session *PresenceSession) error {
	if err := ds.DB.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("saving session %s: %w", session.SessionID, err)
	}
	return nil
}

// CloseOpenSessions stamps the disappearance time on every open session of
// the (track, location, camera) triple and reports how many were closed.
// Zero closed sessions is a valid outcome: a disappearance can arrive
// without a recorded appearance at stream start.
func (ds *DataStore) CloseOpenSessions(ctx context.Context, trackID, locationID, cameraID string, tsMs int64) (int64, error) {
	result := ds.DB.WithContext(ctx).Model(&PresenceSession{}).
		Where("track_id = ? AND location_id = ? AND camera_id = ? AND disappear_ms IS NULL",
			trackID, locationID, cameraID).
		Update("disappear_ms", tsMs)
	if result.Error != nil {
		return 0, fmt.Errorf("closing sessions track=%s: %w", trackID, result.Error)
	}
	return result.RowsAffected, nil
}
