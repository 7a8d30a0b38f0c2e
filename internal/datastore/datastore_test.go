package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sentinelvision/sentinel-central/internal/envelope"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DataStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&Identity{},
		&DetectionEvent{},
		&PresenceSession{},
		&Movement{},
		&AnomalyEpisode{},
	)
	require.NoError(t, err)

	return &DataStore{DB: db}
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestIdentityLifecycle(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	identity := &Identity{
		ID:             "id_1000_abcdef01",
		AnnotationName: "id_1000_abcdef01",
		Embedding:      FloatVector{1, 0, 0},
		CreatedMs:      1000,
		LastSeenMs:     1000,
		CountEvents:    1,
	}
	require.NoError(t, ds.InsertIdentity(ctx, identity))

	got, err := ds.GetIdentity(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, got.ID)
	assert.Equal(t, FloatVector{1, 0, 0}, got.Embedding)
	assert.Equal(t, int64(1), got.CountEvents)

	require.NoError(t, ds.UpdateIdentityEmbedding(ctx, identity.ID, []float32{0, 1, 0}, 2000))
	got, err = ds.GetIdentity(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, FloatVector{0, 1, 0}, got.Embedding)
	assert.Equal(t, int64(2000), got.LastSeenMs)
	assert.Equal(t, int64(2), got.CountEvents)

	_, err = ds.GetIdentity(ctx, "id_unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	err = ds.UpdateIdentityEmbedding(ctx, "id_unknown", []float32{1}, 3000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTrackedAndTrackingInfo(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ds.InsertIdentity(ctx, &Identity{
		ID:             "id_1",
		AnnotationName: "alice",
	}))

	isTracked, annotation, err := ds.GetTrackingInfo(ctx, "id_1")
	require.NoError(t, err)
	assert.False(t, isTracked)
	assert.Equal(t, "alice", annotation)

	require.NoError(t, ds.SetTracked(ctx, "id_1", true))
	// Setting the current value again is a no-op success.
	require.NoError(t, ds.SetTracked(ctx, "id_1", true))

	isTracked, _, err = ds.GetTrackingInfo(ctx, "id_1")
	require.NoError(t, err)
	assert.True(t, isTracked)

	assert.ErrorIs(t, ds.SetTracked(ctx, "id_unknown", true), ErrNotFound)
	_, _, err = ds.GetTrackingInfo(ctx, "id_unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIdentityEmbeddings(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"id_a", "id_b"} {
		require.NoError(t, ds.InsertIdentity(ctx, &Identity{
			ID:        id,
			Embedding: FloatVector{1, 0},
		}))
	}

	identities, err := ds.ListIdentityEmbeddings(ctx)
	require.NoError(t, err)
	assert.Len(t, identities, 2)
	for _, identity := range identities {
		assert.NotEmpty(t, identity.Embedding)
	}
}

func TestDetectionEventResolution(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	event := &DetectionEvent{
		TrackID:    "t1",
		Appeared:   true,
		TsMs:       1000,
		CameraID:   "c1",
		EdgeID:     "e1",
		LocationID: "l1",
		BBoxLTRB:   IntVector{10, 20, 110, 220},
		Attributes: AttributeItems{{Name: "Age-Adult", Score: 0.9}},
	}
	require.NoError(t, ds.SaveDetectionEvent(ctx, event))
	require.NotZero(t, event.ID)

	require.NoError(t, ds.SetDetectionResolved(ctx, event.ID, "id_42"))

	var got DetectionEvent
	require.NoError(t, ds.DB.First(&got, event.ID).Error)
	require.NotNil(t, got.ResolvedID)
	assert.Equal(t, "id_42", *got.ResolvedID)
	assert.Equal(t, IntVector{10, 20, 110, 220}, got.BBoxLTRB)
	assert.Equal(t, AttributeItems{{Name: "Age-Adult", Score: 0.9}}, got.Attributes)
}

func TestSessionOpenAndClose(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	_, err := ds.FindOpenSession(ctx, "t1", "l1", "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	session := &PresenceSession{
		SessionID:  "s_1000_abc123",
		ResolvedID: strPtr("id_1"),
		TrackID:    "t1",
		LocationID: "l1",
		CameraID:   "c1",
		AppearMs:   1000,
	}
	require.NoError(t, ds.SaveSession(ctx, session))

	open, err := ds.FindOpenSession(ctx, "t1", "l1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "s_1000_abc123", open.SessionID)

	// A closed session is not returned as open.
	closed, err := ds.CloseOpenSessions(ctx, "t1", "l1", "c1", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	_, err = ds.FindOpenSession(ctx, "t1", "l1", "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Closing again is a no-op.
	closed, err = ds.CloseOpenSessions(ctx, "t1", "l1", "c1", 6000)
	require.NoError(t, err)
	assert.Zero(t, closed)

	var got PresenceSession
	require.NoError(t, ds.DB.First(&got, session.ID).Error)
	require.NotNil(t, got.DisappearMs)
	assert.Equal(t, int64(5000), *got.DisappearMs)
}

func TestMovements(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	_, err := ds.LastMovement(ctx, "id_1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ds.SaveMovement(ctx, &Movement{
		ResolvedID: "id_1", State: envelope.MovementIn, LocationID: "l1", CameraID: "c1", TsMs: 1000,
	}))
	require.NoError(t, ds.SaveMovement(ctx, &Movement{
		ResolvedID: "id_1", State: envelope.MovementOut, LocationID: "l1", CameraID: "c1", TsMs: 2000,
	}))
	require.NoError(t, ds.SaveMovement(ctx, &Movement{
		ResolvedID: "id_2", State: envelope.MovementIn, LocationID: "l2", CameraID: "c2", TsMs: 3000,
	}))

	last, err := ds.LastMovement(ctx, "id_1")
	require.NoError(t, err)
	assert.Equal(t, envelope.MovementOut, last.State)
	assert.Equal(t, int64(2000), last.TsMs)
}

func TestAnomalyEpisodes(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	_, err := ds.GetAnomalyEpisode(ctx, "ep1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ds.LastAnomalyEpisode(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	row := &AnomalyEpisode{
		Episode:    "ep1",
		Phase:      envelope.PhaseStart,
		Incident:   "anomaly",
		Confidence: 0.8,
		LocationID: "l1",
		CameraID:   "c1",
		StartMs:    int64Ptr(1000),
	}
	require.NoError(t, ds.SaveAnomalyEpisode(ctx, row))

	got, err := ds.GetAnomalyEpisode(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Confidence)

	// Updating through Save keeps a single row per episode.
	got.Phase = envelope.PhaseEnd
	got.EndMs = int64Ptr(4000)
	require.NoError(t, ds.SaveAnomalyEpisode(ctx, got))

	var count int64
	require.NoError(t, ds.DB.Model(&AnomalyEpisode{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, ds.SaveAnomalyEpisode(ctx, &AnomalyEpisode{
		Episode: "ep2", Phase: envelope.PhaseStart, StartMs: int64Ptr(9000),
	}))

	last, err := ds.LastAnomalyEpisode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ep2", last.Episode)
}

func TestTransactionRollback(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()

	err := ds.Transaction(ctx, func(tx Interface) error {
		if err := tx.InsertIdentity(ctx, &Identity{ID: "id_tx"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = ds.GetIdentity(ctx, "id_tx")
	assert.ErrorIs(t, err, ErrNotFound)
}
