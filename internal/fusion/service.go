// Package fusion implements the identity-fusion service: it consumes raw
// detection events, persists them, resolves appearance embeddings to
// persistent identities, and republishes the enriched result.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sentinelvision/sentinel-central/internal/bus"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/envelope"
	"github.com/sentinelvision/sentinel-central/internal/errors"
	"github.com/sentinelvision/sentinel-central/internal/identity"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
)

// Embedding norm tolerance: values outside this band indicate an edge that
// failed to normalize, and the embedding is treated as absent.
const (
	normMin = 0.999
	normMax = 1.001
)

// Service consumes par-events and publishes tts-events.
type Service struct {
	ds        datastore.Interface
	resolver  *identity.Resolver
	bus       bus.Client
	createdBy string
	metrics   *metrics.PipelineMetrics
	log       *slog.Logger
}

// New creates the fusion service.
func New(ds datastore.Interface, resolver *identity.Resolver, busClient bus.Client, createdBy string, m *metrics.PipelineMetrics) *Service {
	return &Service{
		ds:        ds,
		resolver:  resolver,
		bus:       busClient,
		createdBy: createdBy,
		metrics:   m,
		log:       logging.ForService("fusion"),
	}
}

// HandleMessage is the bus handler for the par-event topic. Schema
// violations are terminal for the message (logged and dropped);
// infrastructure failures propagate so the broker redelivers.
func (s *Service) HandleMessage(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	env, err := envelope.Decode(data)
	var p *envelope.ParEventPayload
	if err == nil {
		p, err = env.Par()
	}
	if err != nil {
		s.log.Warn("rejected malformed par-event", "error", err)
		s.observe("rejected", start)
		return nil
	}

	if err := s.process(ctx, env, p); err != nil {
		s.observe("failed", start)
		return err
	}
	s.observe("ok", start)
	return nil
}

func (s *Service) process(ctx context.Context, env *envelope.Envelope, p *envelope.ParEventPayload) error {
	appeared := p.EventType == envelope.EventAppearance
	items, scores := p.ParseAttributes()
	queryEmbedding := s.usableEmbedding(p)

	s.log.Info("par-event received",
		"event_type", p.EventType, "created_by", env.CreatedBy,
		"camera", p.CameraID, "track", p.TrackID)

	var res *identity.Resolution

	// The raw event is persisted in the same unit of work as the
	// resolution so a detection is never lost when resolution fails.
	txErr := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		event := &datastore.DetectionEvent{
			TrackID:    p.TrackID,
			Appeared:   appeared,
			TsMs:       env.TsMs,
			CameraID:   p.CameraID,
			EdgeID:     p.EdgeID,
			LocationID: p.LocationID,
			Frame:      p.Frame,
			ImagePath:  p.ImagePath,
			BBoxLTRB:   datastore.IntVector(p.BBoxLTRB),
			Embedding:  datastore.FloatVector(queryEmbedding),
			Attributes: datastore.AttributeItems(items),
			AttrScores: datastore.FloatVector(scores),
		}
		if err := tx.SaveDetectionEvent(ctx, event); err != nil {
			return err
		}

		if appeared && queryEmbedding != nil {
			r, err := s.resolver.Resolve(ctx, tx, queryEmbedding, env.TsMs)
			if err != nil {
				return fmt.Errorf("resolving identity for track %s: %w", p.TrackID, err)
			}
			res = &r
			s.log.Info("resolved identity",
				"resolved_id", r.ResolvedID, "track", p.TrackID,
				"best_distance", r.BestDistance, "is_new", r.IsNewIdentity)
			return tx.SetDetectionResolved(ctx, event.ID, r.ResolvedID)
		}
		return nil
	})
	if txErr != nil {
		return errors.New(txErr).Component("fusion").Category(errors.CategoryDatabase).
			Context("track_id", p.TrackID).Build()
	}

	return s.publishTts(ctx, env, p, res)
}

// publishTts always publishes downstream: appearances carry the
// resolution outcome, disappearances carry a null resolved_id.
func (s *Service) publishTts(ctx context.Context, env *envelope.Envelope, p *envelope.ParEventPayload, res *identity.Resolution) error {
	tts := envelope.TtsEventPayload{
		ParEventPayload: *p,
		IdfName:         s.createdBy,
		ResolvedAtMs:    env.TsMs,
		BestDistance:    1.0,
	}
	if res != nil {
		tts.ResolvedID = &res.ResolvedID
		tts.BestDistance = res.BestDistance
		tts.SecondDistance = res.SecondDistance
		tts.IsNewIdentity = res.IsNewIdentity
	}

	out, err := envelope.Pack(envelope.TypeTtsEvent, &tts, s.createdBy)
	if err != nil {
		return err
	}
	if err := bus.PublishEnvelope(ctx, s.bus, out); err != nil {
		return errors.New(err).Component("fusion").Category(errors.CategoryBusPublish).Build()
	}
	return nil
}

// usableEmbedding returns the query vector, or nil when the payload has no
// embedding or carries a malformed one. Malformed embeddings are logged
// and treated as absent: the event is still persisted and republished,
// just without resolution.
func (s *Service) usableEmbedding(p *envelope.ParEventPayload) []float32 {
	if len(p.Embedding) == 0 {
		return nil
	}
	if len(p.Embedding) != envelope.EmbeddingDim {
		s.log.Warn("bad embedding length, treating as absent",
			"length", len(p.Embedding), "track", p.TrackID)
		return nil
	}
	var sum float64
	for _, x := range p.Embedding {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm < normMin || norm > normMax {
		s.log.Warn("embedding not unit-norm, treating as absent",
			"norm", norm, "track", p.TrackID)
		return nil
	}
	return p.Embedding
}

func (s *Service) observe(result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveEvent(string(envelope.TypeParEvent), result, time.Since(start).Seconds())
	}
}
