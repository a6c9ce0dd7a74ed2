package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseP5IDecodesPublishersAndOrigins(t *testing.T) {
	doc := `{
		"version": 1,
		"publishers": [
			{"name": "openindiana.org", "origins": ["https://pkg.openindiana.org/hipster"], "properties": {"sticky": "true"}}
		]
	}`
	pubs, err := ParseP5I([]byte(doc))
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "openindiana.org", pubs[0].Name)
	assert.Equal(t, "https://pkg.openindiana.org/hipster", pubs[0].Origin)
}

func TestAddPublishersFromP5IRegistersEachOne(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)

	doc := `{"version": 1, "publishers": [
		{"name": "a", "origins": ["https://a.example.com"]},
		{"name": "b", "origins": ["https://b.example.com"]}
	]}`
	require.NoError(t, img.AddPublishersFromP5I([]byte(doc)))

	pubs := img.Publishers()
	require.Len(t, pubs, 2)
	assert.True(t, pubs[0].Preferred)
	assert.False(t, pubs[1].Preferred)
}
