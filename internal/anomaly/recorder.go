// Package anomaly records anomaly episodes reported by edge detectors.
// Start and end reports for one episode may arrive in either order and
// more than once; the recorder folds them into a single row.
package anomaly

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/envelope"
	"github.com/sentinelvision/sentinel-central/internal/errors"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/media"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
)

// Recorder consumes ad-events and upserts anomaly episodes.
type Recorder struct {
	ds      datastore.Interface
	media   *media.Store
	metrics *metrics.PipelineMetrics
	log     *slog.Logger
}

// New creates the anomaly recorder.
func New(ds datastore.Interface, mediaStore *media.Store, m *metrics.PipelineMetrics) *Recorder {
	return &Recorder{
		ds:      ds,
		media:   mediaStore,
		metrics: m,
		log:     logging.ForService("anomaly"),
	}
}

// HandleAdEvent is the bus handler for the ad-event and anomaly-alert
// topics.
func (r *Recorder) HandleAdEvent(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	env, err := envelope.Decode(data)
	var p *envelope.AdEventPayload
	if err == nil {
		p, err = env.Ad()
	}
	if err != nil {
		r.log.Warn("rejected malformed ad-event", "error", err)
		r.observe("rejected", start)
		return nil
	}

	if err := r.upsert(ctx, p); err != nil {
		r.observe("failed", start)
		return err
	}
	if r.metrics != nil {
		r.metrics.AnomalyUpserts.WithLabelValues(p.Phase).Inc()
	}
	r.observe("ok", start)
	return nil
}

// upsert folds the report into the episode row. Redelivering a report
// yields the row it already produced.
func (r *Recorder) upsert(ctx context.Context, p *envelope.AdEventPayload) error {
	imagePath := r.storeSnapshot(p)

	err := r.ds.Transaction(ctx, func(tx datastore.Interface) error {
		row, err := tx.GetAnomalyEpisode(ctx, p.Episode)
		switch {
		case errors.Is(err, datastore.ErrNotFound):
			row = &datastore.AnomalyEpisode{
				Episode:    p.Episode,
				Phase:      p.Phase,
				Incident:   p.Incident,
				Confidence: p.Confidence,
				LocationID: p.LocationID,
				CameraID:   p.CameraID,
				EdgeID:     p.EdgeID,
				ImagePath:  imagePath,
				StartMs:    p.StartMs,
				EndMs:      p.EndMs,
				DurationMs: p.DurationMs,
			}
		case err != nil:
			return err
		default:
			merge(row, p, imagePath)
		}

		adoptDuration(row, p)
		r.log.Info("anomaly episode upserted",
			"episode", row.Episode, "phase", row.Phase,
			"incident", row.Incident, "camera", row.CameraID)
		return tx.SaveAnomalyEpisode(ctx, row)
	})
	if err != nil {
		return errors.New(err).Component("anomaly").Category(errors.CategoryDatabase).
			Context("episode", p.Episode).Build()
	}
	return nil
}

// merge widens the episode window and keeps the strongest report: start
// takes the minimum, end the maximum, confidence the maximum, and
// identifiers refresh only from non-empty values. An end report is
// terminal for the phase.
func merge(row *datastore.AnomalyEpisode, p *envelope.AdEventPayload, imagePath *string) {
	if p.StartMs != nil && (row.StartMs == nil || *p.StartMs < *row.StartMs) {
		row.StartMs = p.StartMs
	}
	if p.EndMs != nil && (row.EndMs == nil || *p.EndMs > *row.EndMs) {
		row.EndMs = p.EndMs
	}
	if p.Confidence > row.Confidence {
		row.Confidence = p.Confidence
	}
	if p.Phase == envelope.PhaseEnd {
		row.Phase = envelope.PhaseEnd
	}
	// The decode-time default never displaces a specific incident label.
	if p.Incident != "" && (p.Incident != envelope.DefaultIncident || row.Incident == "") {
		row.Incident = p.Incident
	}
	if p.LocationID != "" {
		row.LocationID = p.LocationID
	}
	if p.CameraID != "" {
		row.CameraID = p.CameraID
	}
	if p.EdgeID != "" {
		row.EdgeID = p.EdgeID
	}
	if imagePath != nil && (row.ImagePath == nil || *row.ImagePath == "") {
		row.ImagePath = imagePath
	}
}

// adoptDuration prefers the reported duration and otherwise derives it
// from a complete window.
func adoptDuration(row *datastore.AnomalyEpisode, p *envelope.AdEventPayload) {
	if p.DurationMs != nil {
		row.DurationMs = p.DurationMs
		return
	}
	if row.StartMs != nil && row.EndMs != nil {
		d := *row.EndMs - *row.StartMs
		row.DurationMs = &d
	}
}

// storeSnapshot writes an inline snapshot to the media store. A snapshot
// failure degrades the episode to a null image path rather than failing
// the report.
func (r *Recorder) storeSnapshot(p *envelope.AdEventPayload) *string {
	if p.ImageB64 != "" && r.media != nil {
		ts := envelope.NowMs()
		if p.StartMs != nil {
			ts = *p.StartMs
		}
		path, err := r.media.SaveSnapshot(p.Episode, p.Phase, p.CameraID, ts, p.Ext, p.ImageB64)
		if err != nil {
			r.log.Warn("snapshot write failed, keeping episode without image",
				"episode", p.Episode, "error", err)
			return nil
		}
		return &path
	}
	if p.ImagePath != "" {
		return &p.ImagePath
	}
	return nil
}

func (r *Recorder) observe(result string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveEvent(string(envelope.TypeAdEvent), result, time.Since(start).Seconds())
	}
}
