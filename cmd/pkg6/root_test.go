package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openindiana/pkg6/internal/image"
)

func runRoot(t *testing.T, args ...string) {
	t.Helper()
	RootCmd.SetArgs(args)
	require.NoError(t, RootCmd.Execute())
}

func TestImageCreateThenSetPublisherThenPublisherList(t *testing.T) {
	root := filepath.Join(t.TempDir(), "image")
	imageRoot = root
	defer func() { imageRoot = "" }()

	runRoot(t, "image-create")
	runRoot(t, "set-publisher", "-O", "https://pkg.example.com/repo", "example")

	img, err := image.Load(root)
	require.NoError(t, err)
	pubs := img.Publishers()
	require.Len(t, pubs, 1)
	require.Equal(t, "example", pubs[0].Name)
	require.True(t, pubs[0].Preferred)
}

func TestUnsetPublisherRemovesIt(t *testing.T) {
	root := filepath.Join(t.TempDir(), "image")
	imageRoot = root
	defer func() { imageRoot = "" }()

	runRoot(t, "image-create")
	runRoot(t, "set-publisher", "-O", "https://pkg.example.com/repo", "example")
	runRoot(t, "unset-publisher", "example")

	img, err := image.Load(root)
	require.NoError(t, err)
	require.Empty(t, img.Publishers())
}

func TestSetPublisherFromP5IFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "image")
	imageRoot = root
	defer func() { imageRoot = "" }()

	p5iPath := filepath.Join(t.TempDir(), "hipster.p5i")
	doc := `{"version": 1, "publishers": [{"name": "openindiana.org", "origins": ["https://pkg.openindiana.org/hipster"]}]}`
	require.NoError(t, os.WriteFile(p5iPath, []byte(doc), 0o644))

	runRoot(t, "image-create")
	runRoot(t, "set-publisher", "-p", p5iPath)
	publisherP5IFile = ""

	img, err := image.Load(root)
	require.NoError(t, err)
	pubs := img.Publishers()
	require.Len(t, pubs, 1)
	require.Equal(t, "openindiana.org", pubs[0].Name)
}

func TestStubCommandsReportNotImplemented(t *testing.T) {
	root := filepath.Join(t.TempDir(), "image")
	imageRoot = root
	defer func() { imageRoot = "" }()
	runRoot(t, "image-create")

	RootCmd.SetArgs([]string{"install", "somepkg"})
	err := RootCmd.Execute()
	require.Error(t, err)
}

func TestResolveImageRootDefaultsToRootWhenNoHomeImage(t *testing.T) {
	imageRoot = ""
	t.Setenv("HOME", t.TempDir())
	require.NotEmpty(t, resolveImageRoot())
	require.Equal(t, "/", resolveImageRoot())
}
