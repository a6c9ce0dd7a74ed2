package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttrAction(t *testing.T) {
	m, err := Parse(strings.NewReader(`set name=pkg.fmri value=pkg://test/example@1.0.0`))
	require.NoError(t, err)
	require.Len(t, m.Actions, 1)
	a := m.Actions[0]
	assert.Equal(t, KindSet, a.Kind)
	assert.Equal(t, "pkg.fmri", a.AttrName)
	assert.Equal(t, []string{"pkg://test/example@1.0.0"}, a.AttrValues)
}

func TestParseFileActionWithDigestPayload(t *testing.T) {
	m, err := Parse(strings.NewReader(
		`file uncompressed-file:sha256:abcd1234 path=hello.txt owner=root group=bin mode=0644 pkg.size=9 facet.doc=true`))
	require.NoError(t, err)
	require.Len(t, m.Actions, 1)
	a := m.Actions[0]
	require.NotNil(t, a.Payload)
	assert.Equal(t, "hello.txt", a.Path)
	assert.Equal(t, "root", a.Owner)
	assert.Equal(t, int64(9), a.Size)
	assert.Equal(t, "true", a.Facets["doc"])
}

func TestParseFileActionWithPathLikePayload(t *testing.T) {
	m, err := Parse(strings.NewReader(`file usr/bin/foo path=bin/foo`))
	require.NoError(t, err)
	a := m.Actions[0]
	assert.Nil(t, a.Payload)
	orig, ok := a.Properties.Get("original-path")
	require.True(t, ok)
	assert.Equal(t, "usr/bin/foo", orig)
}

func TestCommentsAndTransformsIgnored(t *testing.T) {
	m, err := Parse(strings.NewReader("# a comment\n<transform set name=pkg.fmri -> ...>\nset name=foo value=bar\n"))
	require.NoError(t, err)
	require.Len(t, m.Actions, 1)
}

func TestUserFtpuserServicesS6(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{"true", []string{"ftp"}},
		{`"ssh, ftp, http"`, []string{"ssh", "ftp", "http"}},
		{"ssh,,http", []string{"ssh", "http"}},
		{"false", nil},
	}
	for _, c := range cases {
		m, err := Parse(strings.NewReader("user username=bob ftpuser=" + c.input))
		require.NoError(t, err)
		a := m.Actions[0]
		if c.want == nil {
			assert.Empty(t, a.Services)
		} else {
			assert.Equal(t, c.want, a.Services)
		}
	}
}

func TestParseLinePreservesLineNumbers(t *testing.T) {
	m, err := Parse(strings.NewReader("set name=a value=1\nset name=b value=2\n"))
	require.NoError(t, err)
	require.Len(t, m.Actions, 2)
	assert.Equal(t, 1, m.Actions[0].Line)
	assert.Equal(t, 2, m.Actions[1].Line)
}

func TestNonFatalErrorsDoNotAbortParsing(t *testing.T) {
	m, err := Parse(strings.NewReader("file uncompressed-file:sha256:abcd path=a overlay=maybe\nset name=b value=2\n"))
	require.Error(t, err) // non-nil ParseErrors
	require.Len(t, m.Actions, 2) // but both actions still parsed
}

func TestDiff(t *testing.T) {
	m1, err := Parse(strings.NewReader("set name=pkg.fmri value=pkg://test/example@1.0.0\n"))
	require.NoError(t, err)
	m2, err := Parse(strings.NewReader("set name=pkg.fmri value=pkg://test/example@1.0.1\n"))
	require.NoError(t, err)

	delta := m1.Diff(m2)
	assert.Len(t, delta.Added, 1)
	assert.Len(t, delta.Removed, 1)
}
