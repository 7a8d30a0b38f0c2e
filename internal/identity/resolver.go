// Package identity maintains canonical per-identity embeddings and resolves
// incoming appearance embeddings to persistent identities.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
	"gonum.org/v1/gonum/floats"
)

// ErrEmptyEmbedding is returned when Resolve is called with a zero or
// empty query vector. Callers must filter those out beforehand.
var ErrEmptyEmbedding = errors.New("query embedding is empty or zero")

// Resolution is the outcome of resolving one appearance embedding.
type Resolution struct {
	ResolvedID     string
	BestDistance   float64
	SecondDistance *float64
	IsNewIdentity  bool
}

// Resolver decides whether an appearance embedding matches an existing
// identity or mints a new one.
//
// Decision policy, in order:
//   - no candidates exist: new identity
//   - best <= tauSame: match best
//   - best <= tauAmbig and (no second or second-best >= deltaMin): match best
//   - otherwise: new identity
//
// The matched identity's canonical embedding is fused with the query via
// EMA and re-normalized, keeping the unit-norm invariant after every write.
type Resolver struct {
	tauSame  float64
	tauAmbig float64
	deltaMin float64
	emaAlpha float64

	// mu serializes resolve+upsert so concurrent appearances of the same
	// person within one instance cannot both read "no match" and mint
	// duplicate identities. Multiple replicas reintroduce that race.
	mu    sync.Mutex
	index *vectorIndex

	metrics *metrics.ResolverMetrics
	log     *slog.Logger
}

// New creates a Resolver with thresholds from the configuration.
func New(settings *conf.ResolverSettings, m *metrics.ResolverMetrics) *Resolver {
	return &Resolver{
		tauSame:  settings.TauSame,
		tauAmbig: settings.TauAmbig,
		deltaMin: settings.DeltaMin,
		emaAlpha: settings.EmaAlpha,
		index:    newVectorIndex(),
		metrics:  m,
		log:      logging.ForService("resolver"),
	}
}

// Warm loads all identity embeddings from the store into the index.
// Call once at startup, before any Resolve.
func (r *Resolver) Warm(ctx context.Context, ds datastore.Interface) error {
	identities, err := ds.ListIdentityEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("warming identity index: %w", err)
	}
	for i := range identities {
		v, ok := unit(identities[i].Embedding)
		if !ok {
			r.log.Warn("skipping identity with zero embedding", "id", identities[i].ID)
			continue
		}
		r.index.set(identities[i].ID, v)
	}
	if r.metrics != nil {
		r.metrics.SetIdentityCount(r.index.size())
	}
	r.log.Info("identity index warmed", "identities", r.index.size())
	return nil
}

// IdentityCount returns the number of identities known to the index.
func (r *Resolver) IdentityCount() int {
	return r.index.size()
}

// Resolve matches the query embedding against the identity space and
// upserts the chosen identity inside the caller's transaction scope.
func (r *Resolver) Resolve(ctx context.Context, tx datastore.Interface, query []float32, tsMs int64) (Resolution, error) {
	qvec, ok := unit(query)
	if !ok {
		return Resolution{}, ErrEmptyEmbedding
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	best, second := r.index.nearest2(qvec)

	if best == nil {
		res := Resolution{ResolvedID: newIdentityID(tsMs), BestDistance: 1.0, IsNewIdentity: true}
		if err := r.insert(ctx, tx, res.ResolvedID, qvec, tsMs); err != nil {
			return Resolution{}, err
		}
		r.observe(res)
		return res, nil
	}

	res := Resolution{BestDistance: best.distance}
	if second != nil {
		d := second.distance
		res.SecondDistance = &d
	}

	switch {
	case best.distance <= r.tauSame:
		res.ResolvedID = best.id
	case best.distance <= r.tauAmbig && (second == nil || second.distance-best.distance >= r.deltaMin):
		res.ResolvedID = best.id
	default:
		res.ResolvedID = newIdentityID(tsMs)
		res.IsNewIdentity = true
	}

	var err error
	if res.IsNewIdentity {
		err = r.insert(ctx, tx, res.ResolvedID, qvec, tsMs)
	} else {
		err = r.fuse(ctx, tx, res.ResolvedID, qvec, tsMs)
	}
	if err != nil {
		return Resolution{}, err
	}
	r.observe(res)
	return res, nil
}

// insert persists a new identity with the normalized query embedding.
func (r *Resolver) insert(ctx context.Context, tx datastore.Interface, id string, qvec []float64, tsMs int64) error {
	identity := &datastore.Identity{
		ID:             id,
		AnnotationName: id,
		Embedding:      toFloat32(qvec),
		CreatedMs:      tsMs,
		LastSeenMs:     tsMs,
		CountEvents:    1,
	}
	if err := tx.InsertIdentity(ctx, identity); err != nil {
		return err
	}
	r.index.set(id, qvec)
	if r.metrics != nil {
		r.metrics.SetIdentityCount(r.index.size())
	}
	return nil
}

// fuse folds the query into the canonical embedding with EMA and
// re-normalizes.
func (r *Resolver) fuse(ctx context.Context, tx datastore.Interface, id string, qvec []float64, tsMs int64) error {
	base, ok := r.index.get(id)
	if !ok {
		return fmt.Errorf("matched identity %s missing from index", id)
	}

	fused := make([]float64, len(base))
	for i := range base {
		fused[i] = (1-r.emaAlpha)*base[i] + r.emaAlpha*qvec[i]
	}
	n := floats.Norm(fused, 2)
	if n == 0 {
		// Opposed vectors cancelling out; keep the query direction.
		copy(fused, qvec)
	} else {
		floats.Scale(1/n, fused)
	}

	if err := tx.UpdateIdentityEmbedding(ctx, id, toFloat32(fused), tsMs); err != nil {
		return err
	}
	r.index.set(id, fused)
	return nil
}

func (r *Resolver) observe(res Resolution) {
	if r.metrics == nil {
		return
	}
	outcome := "matched"
	if res.IsNewIdentity {
		outcome = "new"
	} else if res.BestDistance > r.tauSame {
		outcome = "ambiguous_matched"
	}
	r.metrics.ObserveResolution(outcome, res.BestDistance)
}

// newIdentityID generates a collision-resistant, roughly time-ordered
// identity id: timestamp prefix plus a random suffix.
func newIdentityID(tsMs int64) string {
	u := uuid.New()
	return fmt.Sprintf("id_%d_%s", tsMs, hex.EncodeToString(u[:])[:8])
}
