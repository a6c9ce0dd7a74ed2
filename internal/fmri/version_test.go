package fmri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRoundTrip(t *testing.T) {
	for _, s := range []string{
		"1.2",
		"1.2.0.1",
		"1.18.0,5.11-2020.0.1.0:20200421T195136Z",
		"1.0.0",
	} {
		v, err := ParseVersion(s)
		require.NoError(t, err)
		assert.Equal(t, s, v.String())
	}
}

func TestVersionOrdering(t *testing.T) {
	cases := []struct{ lo, hi string }{
		{"1.2", "1.2.0.1"},
		{"1.2,1", "1.2,2"},
		{"1.2-3", "1.2-4"},
		{"1.2:20200421T195136Z", "1.2:20200421T195137Z"},
	}
	for _, c := range cases {
		lo, err := ParseVersion(c.lo)
		require.NoError(t, err)
		hi, err := ParseVersion(c.hi)
		require.NoError(t, err)
		assert.True(t, lo.Less(hi), "%s should sort before %s", c.lo, c.hi)
		assert.False(t, hi.Less(lo))
	}
}

func TestVersionRejectsNonConformingTimestamp(t *testing.T) {
	_, err := ParseVersion("1.0:2020-04-21")
	require.Error(t, err)
}

func TestToTriplePadsAndTruncates(t *testing.T) {
	v, err := ParseVersion("1.2")
	require.NoError(t, err)
	major, minor, patch := v.ToTriple()
	assert.Equal(t, uint64(1), major)
	assert.Equal(t, uint64(2), minor)
	assert.Equal(t, uint64(0), patch)

	v, err = ParseVersion("1.2.3.4")
	require.NoError(t, err)
	major, minor, patch = v.ToTriple()
	assert.Equal(t, uint64(1), major)
	assert.Equal(t, uint64(2), minor)
	assert.Equal(t, uint64(3), patch)
}
