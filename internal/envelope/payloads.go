// payloads.go: typed payload variants and their validation rules.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Movement and detection enumerations.
const (
	EventAppearance    = "appearance"
	EventDisappearance = "disappearance"

	MovementIn  = "Move-In"
	MovementOut = "Move-Out"

	PhaseStart = "start"
	PhaseEnd   = "end"

	// DefaultIncident labels anomaly reports that carry no incident type.
	DefaultIncident = "anomaly"
)

// EmbeddingDim is the appearance embedding dimensionality.
const EmbeddingDim = 512

var validate = validator.New()

// ParEventPayload is a raw person-detection report from a detection edge.
type ParEventPayload struct {
	EventType  string `json:"event_type" validate:"required,oneof=appearance disappearance"`
	TrackID    string `json:"track_id" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
	CameraID   string `json:"camera_id" validate:"required"`
	EdgeID     string `json:"edge_id" validate:"required"`

	Frame     int    `json:"frame"`
	BBoxLTRB  []int  `json:"bbox_ltrb" validate:"required,len=4"`
	ImagePath string `json:"image_path,omitempty"`

	// Attributes may arrive as human-readable "Name (score)" strings or as
	// an authoritative fixed-length score vector.
	Attributes    []string  `json:"attributes,omitempty"`
	AttributesVec []float32 `json:"attributes_vec,omitempty" validate:"omitempty,len=40"`

	// Embedding may be empty or omitted. Dimensionality is not enforced
	// here: a wrong-length vector is a degraded event, not an invalid
	// one, and the consumer decides how to treat it.
	Embedding []float32 `json:"embedding,omitempty"`
}

// TtsEventPayload is a ParEventPayload enriched with the identity
// resolution outcome.
type TtsEventPayload struct {
	ParEventPayload

	IdfName        string   `json:"idf_name"`
	ResolvedID     *string  `json:"resolved_id"`
	ResolvedAtMs   int64    `json:"resolved_at_ms"`
	BestDistance   float64  `json:"best_distance"`
	SecondDistance *float64 `json:"second_distance"`
	IsNewIdentity  bool     `json:"is_new_identity"`
}

// AdEventPayload reports one phase of an anomaly episode.
type AdEventPayload struct {
	Phase      string  `json:"phase" validate:"required,oneof=start end"`
	Episode    string  `json:"episode" validate:"required"`
	Incident   string  `json:"incident"`
	Confidence float64 `json:"confidence"`
	LocationID string  `json:"location_id" validate:"required"`
	CameraID   string  `json:"camera_id" validate:"required"`
	EdgeID     string  `json:"edge_id" validate:"required"`

	ImagePath string `json:"image_path,omitempty"`
	ImageB64  string `json:"image_b64,omitempty"`
	Ext       string `json:"ext,omitempty"`

	StartMs    *int64 `json:"start_ms,omitempty"`
	EndMs      *int64 `json:"end_ms,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

// UnmarshalJSON accepts "episode_id" as an alias for "episode", normalizes
// phase casing, and applies the incident default.
func (p *AdEventPayload) UnmarshalJSON(data []byte) error {
	type adEventAlias AdEventPayload
	aux := struct {
		*adEventAlias
		EpisodeID string `json:"episode_id"`
	}{adEventAlias: (*adEventAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.Episode == "" {
		p.Episode = aux.EpisodeID
	}
	p.Phase = strings.ToLower(p.Phase)
	if p.Incident == "" {
		p.Incident = DefaultIncident
	}
	return nil
}

// MovementUpdatePayload is a movement notification for a tracked identity.
type MovementUpdatePayload struct {
	MovementType   string  `json:"movement_type" validate:"required,oneof=Move-In Move-Out"`
	ResolvedID     string  `json:"resolved_id" validate:"required"`
	AnnotationName *string `json:"annotation_name"`
	LocationID     string  `json:"location_id" validate:"required"`
	CameraID       string  `json:"camera_id" validate:"required"`
	EdgeID         string  `json:"edge_id" validate:"required"`
	TsMs           int64   `json:"ts_ms" validate:"required"`
	TrackID        *string `json:"track_id"`
}

// Par decodes and validates the payload as a par-event.
func (e *Envelope) Par() (*ParEventPayload, error) {
	if e.Type != TypeParEvent {
		return nil, fmt.Errorf("%w: envelope type %q is not %q", ErrInvalidPayload, e.Type, TypeParEvent)
	}
	var p ParEventPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Tts decodes and validates the payload as a tts-event.
func (e *Envelope) Tts() (*TtsEventPayload, error) {
	if e.Type != TypeTtsEvent {
		return nil, fmt.Errorf("%w: envelope type %q is not %q", ErrInvalidPayload, e.Type, TypeTtsEvent)
	}
	var p TtsEventPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ad decodes and validates the payload as an anomaly report. A start phase
// without start_ms, or an end phase without end_ms, is a schema violation.
func (e *Envelope) Ad() (*AdEventPayload, error) {
	if e.Type != TypeAdEvent && e.Type != TypeAnomalyAlert {
		return nil, fmt.Errorf("%w: envelope type %q is not an anomaly event", ErrInvalidPayload, e.Type)
	}
	var p AdEventPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return nil, err
	}
	if p.Phase == PhaseStart && p.StartMs == nil {
		return nil, fmt.Errorf("%w: start phase requires start_ms (episode=%s)", ErrInvalidPayload, p.Episode)
	}
	if p.Phase == PhaseEnd && p.EndMs == nil {
		return nil, fmt.Errorf("%w: end phase requires end_ms (episode=%s)", ErrInvalidPayload, p.Episode)
	}
	return &p, nil
}

// Movement decodes and validates the payload as a movement-update.
func (e *Envelope) Movement() (*MovementUpdatePayload, error) {
	if e.Type != TypeMovementUpdate {
		return nil, fmt.Errorf("%w: envelope type %q is not %q", ErrInvalidPayload, e.Type, TypeMovementUpdate)
	}
	var p MovementUpdatePayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeInto(raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
