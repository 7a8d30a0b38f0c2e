package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/errors"
)

// trackRequest is the body of the track and untrack commands.
type trackRequest struct {
	ResolvedID string `json:"resolved_id"`
}

// trackingStatusResponse reports the tracking flag for one identity.
type trackingStatusResponse struct {
	ResolvedID     string `json:"resolved_id"`
	IsTracked      bool   `json:"is_tracked"`
	AnnotationName string `json:"annotation_name"`
}

// movementView is the insight projection of a movement record.
type movementView struct {
	ResolvedID     string  `json:"resolved_id"`
	TrackID        *string `json:"track_id"`
	AnnotationName string  `json:"annotation_name"`
	State          string  `json:"state"`
	LocationID     string  `json:"location_id"`
	CameraID       string  `json:"camera_id"`
	EdgeID         string  `json:"edge_id"`
	TsMs           int64   `json:"ts_ms"`
}

// anomalyView is the insight projection of an anomaly episode.
type anomalyView struct {
	Episode    string  `json:"episode"`
	Phase      string  `json:"phase"`
	Incident   string  `json:"incident"`
	Confidence float64 `json:"confidence"`
	LocationID string  `json:"location_id"`
	CameraID   string  `json:"camera_id"`
	ImagePath  *string `json:"image_path"`
	StartMs    *int64  `json:"start_ms"`
	EndMs      *int64  `json:"end_ms"`
	DurationMs *int64  `json:"duration_ms"`
}

// insightResponse pairs the identity's last movement with the most recent
// anomaly episode anywhere on the site. Either side may be null.
type insightResponse struct {
	ResolvedID   string        `json:"resolved_id"`
	LastMovement *movementView `json:"last_movement"`
	LastAnomaly  *anomalyView  `json:"last_anomaly"`
}

// GetInsight handles GET /tracking/insight/:resolved_id.
func (c *Controller) GetInsight(ctx echo.Context) error {
	resolvedID := ctx.Param("resolved_id")
	if resolvedID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "resolved_id is required"})
	}

	cacheKey := "insight:" + resolvedID
	if cached, found := c.insightCache.Get(cacheKey); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	reqCtx := ctx.Request().Context()
	resp := insightResponse{ResolvedID: resolvedID}

	movement, err := c.DS.LastMovement(reqCtx, resolvedID)
	switch {
	case err == nil:
		resp.LastMovement = &movementView{
			ResolvedID:     movement.ResolvedID,
			TrackID:        movement.TrackID,
			AnnotationName: movement.AnnotationName,
			State:          movement.State,
			LocationID:     movement.LocationID,
			CameraID:       movement.CameraID,
			EdgeID:         movement.EdgeID,
			TsMs:           movement.TsMs,
		}
	case !errors.Is(err, datastore.ErrNotFound):
		return c.HandleError(ctx, err, "failed to get last movement")
	}

	episode, err := c.DS.LastAnomalyEpisode(reqCtx)
	switch {
	case err == nil:
		resp.LastAnomaly = &anomalyView{
			Episode:    episode.Episode,
			Phase:      episode.Phase,
			Incident:   episode.Incident,
			Confidence: episode.Confidence,
			LocationID: episode.LocationID,
			CameraID:   episode.CameraID,
			ImagePath:  episode.ImagePath,
			StartMs:    episode.StartMs,
			EndMs:      episode.EndMs,
			DurationMs: episode.DurationMs,
		}
	case !errors.Is(err, datastore.ErrNotFound):
		return c.HandleError(ctx, err, "failed to get last anomaly episode")
	}

	c.insightCache.SetDefault(cacheKey, resp)
	return ctx.JSON(http.StatusOK, resp)
}

// GetTrackingStatus handles GET /tracking/person/:resolved_id/tracking.
func (c *Controller) GetTrackingStatus(ctx echo.Context) error {
	resolvedID := ctx.Param("resolved_id")
	if resolvedID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "resolved_id is required"})
	}

	isTracked, annotation, err := c.DS.GetTrackingInfo(ctx.Request().Context(), resolvedID)
	if err != nil {
		return c.HandleError(ctx, err, "failed to get tracking status")
	}
	return ctx.JSON(http.StatusOK, trackingStatusResponse{
		ResolvedID:     resolvedID,
		IsTracked:      isTracked,
		AnnotationName: annotation,
	})
}

// TrackPerson handles POST /tracking/person/track.
func (c *Controller) TrackPerson(ctx echo.Context) error {
	return c.setTracked(ctx, true)
}

// UntrackPerson handles POST /tracking/person/untrack.
func (c *Controller) UntrackPerson(ctx echo.Context) error {
	return c.setTracked(ctx, false)
}

func (c *Controller) setTracked(ctx echo.Context, tracked bool) error {
	var req trackRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ResolvedID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "resolved_id is required"})
	}

	if err := c.DS.SetTracked(ctx.Request().Context(), req.ResolvedID, tracked); err != nil {
		return c.HandleError(ctx, err, "failed to update tracking flag")
	}
	// Stale cached insight must not outlive a tracking change.
	c.insightCache.Delete("insight:" + req.ResolvedID)

	c.logger.Info("tracking flag updated", "resolved_id", req.ResolvedID, "is_tracked", tracked)
	return ctx.JSON(http.StatusOK, trackingStatusResponse{
		ResolvedID: req.ResolvedID,
		IsTracked:  tracked,
	})
}
