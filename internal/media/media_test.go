package media

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeImage(t *testing.T, content string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(content))
}

func TestSaveSnapshotWritesUnderRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := NewStore(root)

	path, err := s.SaveSnapshot("ep1", "start", "cam7", 4000, "jpg", encodeImage(t, "img-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "snapshots", "anomaly_events", "ep1", "start-cam7-4000.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "img-bytes", string(data))
}

func TestSaveSnapshotNeutralizesTraversalEpisode(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := NewStore(root)

	outside := filepath.Join(root, "snapshots", "escaped.jpg")

	path, err := s.SaveSnapshot("..", "start", "cam1", 1000, "jpg", encodeImage(t, "x"))
	require.NoError(t, err)

	rel, err := filepath.Rel(filepath.Join(root, "snapshots", "anomaly_events"), path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."), "snapshot escaped the anomaly events directory: %s", path)

	_, err = os.Stat(outside)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveSnapshotStripsSeparatorsFromIdentifiers(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := NewStore(root)

	path, err := s.SaveSnapshot("ep/../..", "start", "cam/1", 2000, "jpg", encodeImage(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "snapshots", "anomaly_events", "ep_.._..", "start-cam_1-2000.jpg"), path)
}

func TestSaveSnapshotSanitizesExtension(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := NewStore(root)

	path, err := s.SaveSnapshot("ep2", "end", "cam1", 3000, "png/../../evil", encodeImage(t, "x"))
	require.NoError(t, err)

	rel, err := filepath.Rel(filepath.Join(root, "snapshots", "anomaly_events", "ep2"), path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(rel, string(filepath.Separator)), "extension introduced a path segment: %s", path)
	assert.Equal(t, "end-cam1-3000.png_.._.._evil", filepath.Base(path))
}

func TestSaveSnapshotRejectsBadBase64(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	_, err := s.SaveSnapshot("ep3", "start", "cam1", 1000, "jpg", "not base64!!!")
	assert.Error(t, err)
}
