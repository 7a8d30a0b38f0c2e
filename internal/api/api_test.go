package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/envelope"
)

func setupController(t *testing.T) (*Controller, *datastore.DataStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&datastore.Identity{},
		&datastore.Movement{},
		&datastore.AnomalyEpisode{},
	))
	ds := &datastore.DataStore{DB: db}

	settings := &conf.Settings{}
	settings.WebServer.Port = "0"
	settings.WebServer.InsightCacheTTL = time.Minute

	return New(settings, ds, nil, nil), ds
}

func doRequest(c *Controller, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	c, _ := setupController(t)

	rec := doRequest(c, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	c, _ := setupController(t)

	rec := doRequest(c, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var checks map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checks))
	assert.Equal(t, "ok", checks["database"])
}

func TestTrackUnknownIdentityReturns404(t *testing.T) {
	t.Parallel()
	c, _ := setupController(t)

	rec := doRequest(c, http.MethodPost, "/tracking/person/track", `{"resolved_id":"id_missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackAndUntrack(t *testing.T) {
	t.Parallel()
	c, ds := setupController(t)
	ctx := context.Background()

	require.NoError(t, ds.InsertIdentity(ctx, &datastore.Identity{
		ID: "id_1", AnnotationName: "alice",
	}))

	rec := doRequest(c, http.MethodPost, "/tracking/person/track", `{"resolved_id":"id_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Idempotent: tracking an already tracked identity succeeds.
	rec = doRequest(c, http.MethodPost, "/tracking/person/track", `{"resolved_id":"id_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	isTracked, _, err := ds.GetTrackingInfo(ctx, "id_1")
	require.NoError(t, err)
	assert.True(t, isTracked)

	rec = doRequest(c, http.MethodPost, "/tracking/person/untrack", `{"resolved_id":"id_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	isTracked, _, err = ds.GetTrackingInfo(ctx, "id_1")
	require.NoError(t, err)
	assert.False(t, isTracked)
}

func TestTrackRejectsBadBody(t *testing.T) {
	t.Parallel()
	c, _ := setupController(t)

	rec := doRequest(c, http.MethodPost, "/tracking/person/track", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackingStatus(t *testing.T) {
	t.Parallel()
	c, ds := setupController(t)

	rec := doRequest(c, http.MethodGet, "/tracking/person/id_ghost/tracking", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, ds.InsertIdentity(context.Background(), &datastore.Identity{
		ID: "id_2", AnnotationName: "bob", IsTracked: true,
	}))

	rec = doRequest(c, http.MethodGet, "/tracking/person/id_2/tracking", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status trackingStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "id_2", status.ResolvedID)
	assert.True(t, status.IsTracked)
	assert.Equal(t, "bob", status.AnnotationName)
}

func TestInsightEmpty(t *testing.T) {
	t.Parallel()
	c, _ := setupController(t)

	rec := doRequest(c, http.MethodGet, "/tracking/insight/id_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp insightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "id_1", resp.ResolvedID)
	assert.Nil(t, resp.LastMovement)
	assert.Nil(t, resp.LastAnomaly)
}

func TestInsightReturnsLastMovementAndAnomaly(t *testing.T) {
	t.Parallel()
	c, ds := setupController(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveMovement(ctx, &datastore.Movement{
		ResolvedID: "id_1", AnnotationName: "alice", State: envelope.MovementIn,
		LocationID: "l1", CameraID: "c1", TsMs: 1000,
	}))
	require.NoError(t, ds.SaveMovement(ctx, &datastore.Movement{
		ResolvedID: "id_1", AnnotationName: "alice", State: envelope.MovementOut,
		LocationID: "l1", CameraID: "c1", TsMs: 2000,
	}))
	start := int64(500)
	require.NoError(t, ds.SaveAnomalyEpisode(ctx, &datastore.AnomalyEpisode{
		Episode: "ep1", Phase: envelope.PhaseStart, Incident: "anomaly",
		Confidence: 0.8, LocationID: "l2", CameraID: "c2", StartMs: &start,
	}))

	rec := doRequest(c, http.MethodGet, "/tracking/insight/id_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp insightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastMovement)
	assert.Equal(t, envelope.MovementOut, resp.LastMovement.State)
	assert.Equal(t, int64(2000), resp.LastMovement.TsMs)
	require.NotNil(t, resp.LastAnomaly)
	assert.Equal(t, "ep1", resp.LastAnomaly.Episode)
}

func TestInsightIsCachedWithinTTL(t *testing.T) {
	t.Parallel()
	c, ds := setupController(t)
	ctx := context.Background()

	rec := doRequest(c, http.MethodGet, "/tracking/insight/id_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ds.SaveMovement(ctx, &datastore.Movement{
		ResolvedID: "id_1", State: envelope.MovementIn, LocationID: "l1", CameraID: "c1", TsMs: 1000,
	}))

	// Still the cached, movement-free response.
	rec = doRequest(c, http.MethodGet, "/tracking/insight/id_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp insightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.LastMovement)
}

func TestTrackInvalidatesInsightCache(t *testing.T) {
	t.Parallel()
	c, ds := setupController(t)
	ctx := context.Background()

	require.NoError(t, ds.InsertIdentity(ctx, &datastore.Identity{ID: "id_1"}))

	rec := doRequest(c, http.MethodGet, "/tracking/insight/id_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ds.SaveMovement(ctx, &datastore.Movement{
		ResolvedID: "id_1", State: envelope.MovementIn, LocationID: "l1", CameraID: "c1", TsMs: 1000,
	}))

	rec = doRequest(c, http.MethodPost, "/tracking/person/track", `{"resolved_id":"id_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(c, http.MethodGet, "/tracking/insight/id_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp insightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastMovement)
}
