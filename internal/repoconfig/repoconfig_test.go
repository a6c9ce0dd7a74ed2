package repoconfig

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsVersion4(t *testing.T) {
	c := Default()
	assert.Equal(t, MaxVersion, c.Version)
	assert.Empty(t, c.Publishers)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg6.repository")

	c := Default()
	require.NoError(t, c.AddPublisher("openindiana.org"))
	require.NoError(t, c.SetDefaultPublisher("openindiana.org"))

	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.Version, got.Version)
	assert.Equal(t, "openindiana.org", got.DefaultPublisher)
	assert.True(t, got.HasPublisher("openindiana.org"))
}

func TestParseRejectsOutOfRangeVersion(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte(`{"version": 99}`)))
	require.Error(t, err)
}

func TestParseAcceptsYAML(t *testing.T) {
	raw := "version: 4\npublishers:\n  - name: openindiana.org\ndefault_publisher: openindiana.org\n"
	c, err := Parse(bytes.NewReader([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, 4, c.Version)
	assert.True(t, c.HasPublisher("openindiana.org"))
}

func TestPublisherCRUD(t *testing.T) {
	c := Default()
	require.NoError(t, c.AddPublisher("a"))
	require.Error(t, c.AddPublisher("a"))

	require.Error(t, c.SetDefaultPublisher("b"))
	require.NoError(t, c.SetDefaultPublisher("a"))

	require.NoError(t, c.RemovePublisher("a"))
	assert.Empty(t, c.DefaultPublisher)
	require.Error(t, c.RemovePublisher("a"))
}
