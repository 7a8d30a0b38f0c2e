// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"errors"

	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Interface abstracts the underlying database implementation and defines
// the operations the pipeline needs. Transaction yields an Interface bound
// to the transaction scope; all writes of one unit of work go through it.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error
	Transaction(ctx context.Context, fn func(tx Interface) error) error

	// Detection events
	SaveDetectionEvent(ctx context.Context, event *DetectionEvent) error
	SetDetectionResolved(ctx context.Context, eventID uint, resolvedID string) error

	// Identities
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	ListIdentityEmbeddings(ctx context.Context) ([]Identity, error)
	InsertIdentity(ctx context.Context, identity *Identity) error
	UpdateIdentityEmbedding(ctx context.Context, id string, embedding []float32, lastSeenMs int64) error
	SetTracked(ctx context.Context, id string, tracked bool) error
	GetTrackingInfo(ctx context.Context, id string) (isTracked bool, annotationName string, err error)

	// Presence sessions
	FindOpenSession(ctx context.Context, trackID, locationID, cameraID string) (*PresenceSession, error)
	SaveSession(ctx context.Context, session *PresenceSession) error
	CloseOpenSessions(ctx context.Context, trackID, locationID, cameraID string, tsMs int64) (int64, error)

	// Movements
	SaveMovement(ctx context.Context, movement *Movement) error
	LastMovement(ctx context.Context, resolvedID string) (*Movement, error)

	// Anomaly episodes
	GetAnomalyEpisode(ctx context.Context, episode string) (*AnomalyEpisode, error)
	SaveAnomalyEpisode(ctx context.Context, row *AnomalyEpisode) error
	LastAnomalyEpisode(ctx context.Context) (*AnomalyEpisode, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a store instance based on the enabled output backend.
func New(settings *conf.Settings, dbMetrics *metrics.DatastoreMetrics) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings, Metrics: dbMetrics}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings, Metrics: dbMetrics}
	default:
		return nil
	}
}

// Transaction runs fn inside a database transaction. The Interface passed
// to fn is scoped to the transaction; it commits when fn returns nil and
// rolls back otherwise.
func (ds *DataStore) Transaction(ctx context.Context, fn func(tx Interface) error) error {
	return ds.DB.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&DataStore{DB: txdb})
	})
}

// Ping verifies the underlying connection is usable.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return errors.New("database connection is not initialized")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Open is implemented by the backend-specific stores.
func (ds *DataStore) Open() error {
	return errors.New("open must be called on a backend store")
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
