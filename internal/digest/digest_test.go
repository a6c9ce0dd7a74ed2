package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareHexIsPrimarySHA1(t *testing.T) {
	d, err := Parse("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, SourcePrimaryPayload, d.Source)
	assert.Equal(t, SHA1, d.Algorithm)
	assert.Equal(t, "deadbeef", d.Hex)
}

func TestParseGzipSHA512t(t *testing.T) {
	d, err := Parse("gzip:sha512t:abcd")
	require.NoError(t, err)
	assert.Equal(t, SourceGzipCompressed, d.Source)
	assert.Equal(t, SHA512t256, d.Algorithm)
	assert.Equal(t, "abcd", d.Hex)
}

func TestParseRejectsUnknownAlgorithm(t *testing.T) {
	_, err := Parse("uncompressed-file:md5:abcd")
	require.Error(t, err)
}

func TestParseRejectsNonThreePartColonForm(t *testing.T) {
	_, err := Parse("a:b:c:d")
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{
		"uncompressed-file:sha256:abcd1234",
		"primary-payload:sha1:deadbeef",
	} {
		d, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, d.String())
	}

	// bare hex canonicalizes to the primary-payload:sha1 form.
	d, err := Parse("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "primary-payload:sha1:deadbeef", d.String())
}

func TestFromBytesAndVerify(t *testing.T) {
	payload := []byte("Hello IPS")
	d, err := FromBytes(SourceUncompressedFile, SHA256, payload)
	require.NoError(t, err)
	require.NoError(t, Verify(d, strings.NewReader(string(payload))))

	err = Verify(d, strings.NewReader("corrupted"))
	require.Error(t, err)
}
