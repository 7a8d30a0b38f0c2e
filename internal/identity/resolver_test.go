package identity

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
)

func setupResolver(t *testing.T) (*Resolver, *datastore.DataStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&datastore.Identity{}))

	r := New(&conf.ResolverSettings{
		TauSame:  0.22,
		TauAmbig: 0.30,
		DeltaMin: 0.05,
		EmaAlpha: 0.2,
	}, nil)
	return r, &datastore.DataStore{DB: db}
}

// vecAt returns a unit vector at the given angle in the xy plane.
func vecAt(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func TestResolveEmptyIndexMintsIdentity(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)
	ctx := context.Background()

	res, err := r.Resolve(ctx, ds, vecAt(0), 1000)
	require.NoError(t, err)
	assert.True(t, res.IsNewIdentity)
	assert.Regexp(t, `^id_1000_[0-9a-f]{8}$`, res.ResolvedID)
	assert.Equal(t, 1.0, res.BestDistance)
	assert.Nil(t, res.SecondDistance)
	assert.Equal(t, 1, r.IdentityCount())

	row, err := ds.GetIdentity(ctx, res.ResolvedID)
	require.NoError(t, err)
	assert.Equal(t, res.ResolvedID, row.AnnotationName)
	assert.Equal(t, int64(1), row.CountEvents)
	assert.Equal(t, int64(1000), row.CreatedMs)
}

func TestResolveCloseMatchFuses(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, ds, vecAt(0), 1000)
	require.NoError(t, err)

	// Small angle: cosine distance well below the same-identity threshold.
	res, err := r.Resolve(ctx, ds, vecAt(0.1), 2000)
	require.NoError(t, err)
	assert.False(t, res.IsNewIdentity)
	assert.Equal(t, first.ResolvedID, res.ResolvedID)
	assert.LessOrEqual(t, res.BestDistance, 0.22)
	assert.Equal(t, 1, r.IdentityCount())

	row, err := ds.GetIdentity(ctx, res.ResolvedID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.CountEvents)
	assert.Equal(t, int64(2000), row.LastSeenMs)

	var norm float64
	for _, x := range row.Embedding {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3)
}

func TestResolveFarVectorMintsIdentity(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, ds, vecAt(0), 1000)
	require.NoError(t, err)

	// Orthogonal: distance 1.0, above the ambiguous band.
	res, err := r.Resolve(ctx, ds, vecAt(math.Pi/2), 2000)
	require.NoError(t, err)
	assert.True(t, res.IsNewIdentity)
	assert.NotEqual(t, first.ResolvedID, res.ResolvedID)
	assert.InDelta(t, 1.0, res.BestDistance, 1e-4)
	assert.Equal(t, 2, r.IdentityCount())
}

// ambiguousSetup seeds two identities and returns them with a query whose
// best distance falls inside the ambiguous band, secondDist away from the
// runner-up.
func ambiguousSetup(t *testing.T, r *Resolver, ds *datastore.DataStore, secondDist float64) (bestID string, query []float32) {
	t.Helper()
	ctx := context.Background()

	// Query sits at angle phi from the first identity so that
	// 1-cos(phi) = 0.25, inside (tauSame, tauAmbig].
	phi := math.Acos(0.75)
	// Second identity sits on the far side of the query at the angle
	// giving the requested distance from the query.
	psi := math.Acos(1 - secondDist)

	first, err := r.Resolve(ctx, ds, vecAt(0), 1000)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, ds, vecAt(phi+psi), 2000)
	require.NoError(t, err)
	require.True(t, second.IsNewIdentity, "seed identities must be distinct")

	return first.ResolvedID, vecAt(phi)
}

func TestResolveAmbiguousWithoutMarginMintsIdentity(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)
	ctx := context.Background()

	// Best 0.25, second 0.28: margin 0.03 is under the required 0.05.
	_, query := ambiguousSetup(t, r, ds, 0.28)

	res, err := r.Resolve(ctx, ds, query, 3000)
	require.NoError(t, err)
	assert.True(t, res.IsNewIdentity)
	assert.InDelta(t, 0.25, res.BestDistance, 1e-4)
	require.NotNil(t, res.SecondDistance)
	assert.InDelta(t, 0.28, *res.SecondDistance, 1e-4)
	assert.Equal(t, 3, r.IdentityCount())
}

func TestResolveAmbiguousWithMarginMatches(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)
	ctx := context.Background()

	// Best 0.25, second 0.32: margin 0.07 clears the required 0.05.
	bestID, query := ambiguousSetup(t, r, ds, 0.32)

	res, err := r.Resolve(ctx, ds, query, 3000)
	require.NoError(t, err)
	assert.False(t, res.IsNewIdentity)
	assert.Equal(t, bestID, res.ResolvedID)
	assert.InDelta(t, 0.25, res.BestDistance, 1e-4)
	assert.Equal(t, 2, r.IdentityCount())
}

func TestResolveRejectsZeroEmbedding(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)

	_, err := r.Resolve(context.Background(), ds, []float32{0, 0, 0}, 1000)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestWarmLoadsPersistedIdentities(t *testing.T) {
	t.Parallel()
	r, ds := setupResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, ds, vecAt(0), 1000)
	require.NoError(t, err)

	fresh := New(&conf.ResolverSettings{TauSame: 0.22, TauAmbig: 0.30, DeltaMin: 0.05, EmaAlpha: 0.2}, nil)
	require.NoError(t, fresh.Warm(ctx, ds))
	assert.Equal(t, 1, fresh.IdentityCount())

	res, err := fresh.Resolve(ctx, ds, vecAt(0), 2000)
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedID, res.ResolvedID)
	assert.False(t, res.IsNewIdentity)
}
