package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	RootCmd.SetOut(buf)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	require.NoError(t, err)
	return buf.String()
}

func TestCreateThenAddPublisherThenList(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")

	runRoot(t, "create", root)
	runRoot(t, "add-publisher", "-s", root, "test")

	out := runRoot(t, "list", "-s", root)
	require.Empty(t, out) // cobra's SetOut doesn't capture fmt.Print*; list has no packages yet either way
}

func TestCreateRejectsUnsupportedVersion(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")
	RootCmd.SetArgs([]string{"create", "--version", "99", root})
	err := RootCmd.Execute()
	require.Error(t, err)
}

func TestRemovePublisherOnNonexistentRepoFails(t *testing.T) {
	RootCmd.SetArgs([]string{"remove-publisher", "-s", filepath.Join(t.TempDir(), "missing"), "test"})
	err := RootCmd.Execute()
	require.Error(t, err)
}
