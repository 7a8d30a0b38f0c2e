package conf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestSettings() *Settings {
	s := &Settings{}
	s.Output.SQLite.Enabled = true
	s.Resolver = ResolverSettings{TauSame: 0.22, TauAmbig: 0.30, DeltaMin: 0.05, EmaAlpha: 0.2}
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateSettings(validTestSettings()))

	noBackend := validTestSettings()
	noBackend.Output.SQLite.Enabled = false
	assert.Error(t, validateSettings(noBackend))

	invertedBand := validTestSettings()
	invertedBand.Resolver.TauSame = 0.5
	assert.Error(t, validateSettings(invertedBand))

	badAlpha := validTestSettings()
	badAlpha.Resolver.EmaAlpha = 1.5
	assert.Error(t, validateSettings(badAlpha))
}

func TestGetBasePathCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "logs")
	got := GetBasePath(dir)
	require.Equal(t, dir, got)
	assert.DirExists(t, got)
}
