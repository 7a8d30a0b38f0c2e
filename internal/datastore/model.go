// model.go: this code defines the data model for the application
package datastore

// Identity is the canonical record of a resolved person. Identities are
// append-only: created on first unmatched detection, fused via EMA on every
// subsequent match, never deleted. The resolver is the only writer of the
// embedding column, which holds a unit-norm vector at all times.
type Identity struct {
	ID             string      `gorm:"primaryKey;size:128"`
	AnnotationName string      `gorm:"size:256"`
	Embedding      FloatVector `gorm:"type:text"`
	CreatedMs      int64
	LastSeenMs     int64 `gorm:"index"`
	CountEvents    int64
	IsTracked      bool
}

// DetectionEvent is one raw appearance/disappearance report from an edge.
// Immutable once persisted, except that ResolvedID is attached exactly once
// at resolution time.
type DetectionEvent struct {
	ID         uint    `gorm:"primaryKey"`
	TrackID    string  `gorm:"size:128;index"`
	ResolvedID *string `gorm:"size:128;index:idx_events_resolved_ts"`
	Appeared   bool
	TsMs       int64  `gorm:"index;index:idx_events_resolved_ts;index:idx_events_cam_ts"`
	CameraID   string `gorm:"size:128;index:idx_events_cam_ts"`
	EdgeID     string `gorm:"size:128;index"`
	LocationID string `gorm:"size:128;index"`
	Frame      int
	ImagePath  string

	BBoxLTRB   IntVector      `gorm:"type:text"`
	Embedding  FloatVector    `gorm:"type:text"`
	Attributes AttributeItems `gorm:"type:text"`
	AttrScores FloatVector    `gorm:"type:text"`
}

// PresenceSession is one open/closed interval of a resolved identity being
// present at a (track, location, camera) triple. At most one open session
// (DisappearMs nil) exists per triple.
type PresenceSession struct {
	ID          uint    `gorm:"primaryKey"`
	SessionID   string  `gorm:"size:64;uniqueIndex"`
	ResolvedID  *string `gorm:"size:128;index"`
	TrackID     string  `gorm:"size:128;index:idx_sessions_open"`
	LocationID  string  `gorm:"size:128;index:idx_sessions_open"`
	CameraID    string  `gorm:"size:128;index:idx_sessions_open"`
	AppearMs    int64   `gorm:"index"`
	DisappearMs *int64  `gorm:"index"`
	ImagePath   string
	Attributes  AttributeItems `gorm:"type:text"`
	AttrScores  FloatVector    `gorm:"type:text"`
	Embedding   FloatVector    `gorm:"type:text"`
}

// Movement is an append-only audit record of a movement notification for a
// tracked identity.
type Movement struct {
	ID             uint    `gorm:"primaryKey"`
	ResolvedID     string  `gorm:"size:128;index:idx_movements_resolved_ts"`
	TrackID        *string `gorm:"size:128;index"`
	AnnotationName string  `gorm:"size:256"`
	State          string  `gorm:"size:64"`
	LocationID     string  `gorm:"size:128;index"`
	CameraID       string  `gorm:"size:128"`
	EdgeID         string  `gorm:"size:128"`
	TsMs           int64   `gorm:"index:idx_movements_resolved_ts"`
}

// AnomalyEpisode is one row per anomaly episode key, upserted by start and
// end reports arriving in either order.
type AnomalyEpisode struct {
	ID         uint   `gorm:"primaryKey"`
	Episode    string `gorm:"size:128;uniqueIndex"`
	Phase      string `gorm:"size:16"`
	Incident   string `gorm:"size:128;index"`
	Confidence float64
	LocationID string `gorm:"size:128;index"`
	CameraID   string `gorm:"size:128;index"`
	EdgeID     string `gorm:"size:128"`
	ImagePath  *string
	StartMs    *int64 `gorm:"index"`
	EndMs      *int64
	DurationMs *int64
}
