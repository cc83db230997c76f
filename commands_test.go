package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AnishMulay/ftserver/config"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommandAppliesFlags(t *testing.T) {
	root := t.TempDir()
	out, err := run(t, "", "config", "-d", root, "-p", "9000", "-a", "0.0.0.0")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, root, cfg.Storage.Root)
	assert.Equal(t, 9000, cfg.Network.Port)
	assert.Equal(t, "0.0.0.0", cfg.Network.Address)
	assert.EqualValues(t, 0660, cfg.Storage.FileMode)
}

func TestConfigCommandRequiresRoot(t *testing.T) {
	_, err := run(t, "", "config")
	assert.Error(t, err)
}

func TestClientCommands(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)
	addr := s.Addr().String()

	_, err := run(t, "from stdin", "put", "-s", addr, "-", "docs/note.txt")
	require.NoError(t, err)

	out, err := run(t, "", "get", "-s", addr, "docs/note.txt")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", out)

	local := filepath.Join(t.TempDir(), "copy.txt")
	_, err = run(t, "", "get", "-s", addr, "docs/note.txt", local)
	require.NoError(t, err)
	b, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(b))

	out, err = run(t, "", "ls", "-s", addr, "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "note.txt")

	_, err = run(t, "", "get", "-s", addr, "missing")
	assert.Error(t, err)
}
