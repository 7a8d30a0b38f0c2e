// Package tracking maintains presence sessions from resolved detection
// events and emits movement notifications for identities under watch.
package tracking

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelvision/sentinel-central/internal/bus"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/envelope"
	"github.com/sentinelvision/sentinel-central/internal/errors"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
)

// Service consumes tts-events, maintains presence sessions, and publishes
// movement-updates for tracked identities. It also consumes its own
// movement-update topic to persist the audit trail.
type Service struct {
	ds        datastore.Interface
	bus       bus.Client
	createdBy string
	metrics   *metrics.PipelineMetrics
	log       *slog.Logger
}

// New creates the tracking service.
func New(ds datastore.Interface, busClient bus.Client, createdBy string, m *metrics.PipelineMetrics) *Service {
	return &Service{
		ds:        ds,
		bus:       busClient,
		createdBy: createdBy,
		metrics:   m,
		log:       logging.ForService("tracking"),
	}
}

// HandleTtsEvent is the bus handler for the tts-event topic.
func (s *Service) HandleTtsEvent(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	env, err := envelope.Decode(data)
	var p *envelope.TtsEventPayload
	if err == nil {
		p, err = env.Tts()
	}
	if err != nil {
		s.log.Warn("rejected malformed tts-event", "error", err)
		s.observe(envelope.TypeTtsEvent, "rejected", start)
		return nil
	}

	if err := s.process(ctx, env, p); err != nil {
		s.observe(envelope.TypeTtsEvent, "failed", start)
		return err
	}
	s.observe(envelope.TypeTtsEvent, "ok", start)
	return nil
}

func (s *Service) process(ctx context.Context, env *envelope.Envelope, p *envelope.TtsEventPayload) error {
	switch p.EventType {
	case envelope.EventAppearance:
		if err := s.openOrMergeSession(ctx, env, p); err != nil {
			return err
		}
	case envelope.EventDisappearance:
		if err := s.closeSessions(ctx, env, p); err != nil {
			return err
		}
	}
	return s.notifyIfTracked(ctx, env, p)
}

// openOrMergeSession opens a presence session for the track, or fills in
// fields a redelivered or partial appearance left empty on the one already
// open. Redelivery of the same appearance is therefore harmless.
func (s *Service) openOrMergeSession(ctx context.Context, env *envelope.Envelope, p *envelope.TtsEventPayload) error {
	items, scores := p.ParseAttributes()

	err := s.ds.Transaction(ctx, func(tx datastore.Interface) error {
		session, err := tx.FindOpenSession(ctx, p.TrackID, p.LocationID, p.CameraID)
		switch {
		case errors.Is(err, datastore.ErrNotFound):
			session = &datastore.PresenceSession{
				SessionID:  newSessionID(env.TsMs),
				ResolvedID: p.ResolvedID,
				TrackID:    p.TrackID,
				LocationID: p.LocationID,
				CameraID:   p.CameraID,
				AppearMs:   env.TsMs,
				ImagePath:  p.ImagePath,
				Attributes: datastore.AttributeItems(items),
				AttrScores: datastore.FloatVector(scores),
				Embedding:  datastore.FloatVector(p.Embedding),
			}
			if err := tx.SaveSession(ctx, session); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.SessionsOpened.Inc()
			}
			s.log.Info("session opened",
				"session_id", session.SessionID, "track", p.TrackID,
				"location", p.LocationID, "camera", p.CameraID)
			return nil
		case err != nil:
			return err
		}

		changed := false
		if session.ResolvedID == nil && p.ResolvedID != nil {
			session.ResolvedID = p.ResolvedID
			changed = true
		}
		if session.ImagePath == "" && p.ImagePath != "" {
			session.ImagePath = p.ImagePath
			changed = true
		}
		if len(session.Attributes) == 0 && len(items) > 0 {
			session.Attributes = datastore.AttributeItems(items)
			session.AttrScores = datastore.FloatVector(scores)
			changed = true
		}
		if len(session.Embedding) == 0 && len(p.Embedding) > 0 {
			session.Embedding = datastore.FloatVector(p.Embedding)
			changed = true
		}
		if !changed {
			return nil
		}
		s.log.Debug("session merged", "session_id", session.SessionID, "track", p.TrackID)
		return tx.SaveSession(ctx, session)
	})
	if err != nil {
		return errors.New(err).Component("tracking").Category(errors.CategoryDatabase).
			Context("track_id", p.TrackID).Build()
	}
	return nil
}

// closeSessions stamps the disappearance time on any sessions still open
// for the track. A disappearance with no open session is a no-op.
func (s *Service) closeSessions(ctx context.Context, env *envelope.Envelope, p *envelope.TtsEventPayload) error {
	closed, err := s.ds.CloseOpenSessions(ctx, p.TrackID, p.LocationID, p.CameraID, env.TsMs)
	if err != nil {
		return errors.New(err).Component("tracking").Category(errors.CategorySession).
			Context("track_id", p.TrackID).Build()
	}
	if closed > 0 {
		if s.metrics != nil {
			s.metrics.SessionsClosed.Add(float64(closed))
		}
		s.log.Info("sessions closed", "count", closed, "track", p.TrackID,
			"location", p.LocationID, "camera", p.CameraID)
	}
	return nil
}

// notifyIfTracked publishes a movement-update when the event resolved to
// an identity that is under watch. Unresolved or untracked events pass
// through silently.
func (s *Service) notifyIfTracked(ctx context.Context, env *envelope.Envelope, p *envelope.TtsEventPayload) error {
	if p.ResolvedID == nil {
		return nil
	}

	isTracked, annotation, err := s.ds.GetTrackingInfo(ctx, *p.ResolvedID)
	if errors.Is(err, datastore.ErrNotFound) {
		s.log.Debug("resolved identity no longer exists", "resolved_id", *p.ResolvedID)
		return nil
	}
	if err != nil {
		return errors.New(err).Component("tracking").Category(errors.CategoryDatabase).
			Context("resolved_id", *p.ResolvedID).Build()
	}
	if !isTracked {
		return nil
	}

	state := envelope.MovementIn
	if p.EventType == envelope.EventDisappearance {
		state = envelope.MovementOut
	}

	update := envelope.MovementUpdatePayload{
		MovementType: state,
		ResolvedID:   *p.ResolvedID,
		LocationID:   p.LocationID,
		CameraID:     p.CameraID,
		EdgeID:       p.EdgeID,
		TsMs:         env.TsMs,
		TrackID:      &p.TrackID,
	}
	if annotation != "" {
		update.AnnotationName = &annotation
	}

	out, err := envelope.Pack(envelope.TypeMovementUpdate, &update, s.createdBy)
	if err != nil {
		return err
	}
	if err := bus.PublishEnvelope(ctx, s.bus, out); err != nil {
		return errors.New(err).Component("tracking").Category(errors.CategoryBusPublish).
			Context("resolved_id", *p.ResolvedID).Build()
	}
	if s.metrics != nil {
		s.metrics.MovementsEmitted.Inc()
	}
	s.log.Info("movement emitted", "resolved_id", *p.ResolvedID,
		"state", state, "location", p.LocationID, "camera", p.CameraID)
	return nil
}

// HandleMovementUpdate is the bus handler for the movement-update topic:
// it appends the notification to the movement audit trail.
func (s *Service) HandleMovementUpdate(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	env, err := envelope.Decode(data)
	var p *envelope.MovementUpdatePayload
	if err == nil {
		p, err = env.Movement()
	}
	if err != nil {
		s.log.Warn("rejected malformed movement-update", "error", err)
		s.observe(envelope.TypeMovementUpdate, "rejected", start)
		return nil
	}

	annotation := p.ResolvedID
	if p.AnnotationName != nil && *p.AnnotationName != "" {
		annotation = *p.AnnotationName
	}
	movement := &datastore.Movement{
		ResolvedID:     p.ResolvedID,
		TrackID:        p.TrackID,
		AnnotationName: annotation,
		State:          p.MovementType,
		LocationID:     p.LocationID,
		CameraID:       p.CameraID,
		EdgeID:         p.EdgeID,
		TsMs:           p.TsMs,
	}
	if err := s.ds.SaveMovement(ctx, movement); err != nil {
		s.observe(envelope.TypeMovementUpdate, "failed", start)
		return errors.New(err).Component("tracking").Category(errors.CategoryDatabase).
			Context("resolved_id", p.ResolvedID).Build()
	}
	s.observe(envelope.TypeMovementUpdate, "ok", start)
	return nil
}

func (s *Service) observe(t envelope.EventType, result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveEvent(string(t), result, time.Since(start).Seconds())
	}
}

func newSessionID(tsMs int64) string {
	u := uuid.New()
	return fmt.Sprintf("s_%d_%s", tsMs, hex.EncodeToString(u[:])[:6])
}
