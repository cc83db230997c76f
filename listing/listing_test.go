package listing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTwoEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0640))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0750))

	out, err := Format(dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	require.Len(t, lines, 2)

	byName := map[string][]string{}
	for _, line := range lines {
		fields := strings.Fields(line)
		// type+perms, links, owner, group, size, month, day, time, name
		require.Len(t, fields, 9, line)
		byName[fields[8]] = fields
	}

	file := byName["a.txt"]
	require.NotNil(t, file)
	assert.Equal(t, "-rw-r-----", file[0])
	assert.Equal(t, "5", file[4])
	assert.NotEmpty(t, file[2])

	sub := byName["subdir"]
	require.NotNil(t, sub)
	assert.Equal(t, byte('d'), sub[0][0])
	assert.NotEmpty(t, sub[2])
}

func TestFormatEmptyDir(t *testing.T) {
	out, err := Format(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFormatNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, err := Format(path)
	assert.Error(t, err)
}

func TestFormatSkipsDanglingEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok"), nil, 0600))
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling")))

	out, err := Format(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "\n"))
	assert.Contains(t, string(out), " ok\n")
}

func TestPerms(t *testing.T) {
	tests := map[os.FileMode]string{
		0:                    "---------",
		0777:                 "rwxrwxrwx",
		0765:                 "rwxrw-r-x",
		0660:                 "rw-rw----",
		os.ModeDir | 0770:    "rwxrwx---",
		os.ModeSetuid | 0400: "r--------",
	}
	for mode, want := range tests {
		assert.Equal(t, want, Perms(mode), "mode %o", mode)
	}
}

func TestEntryLine(t *testing.T) {
	mtime := time.Date(2024, time.March, 7, 9, 5, 0, 0, time.Local)
	e := Entry{Name: "notes.md", Mode: 0644, Links: 1, Owner: "alice", Group: "staff", Size: 42, ModTime: mtime}

	assert.Equal(t, "-rw-r--r--  1 alice    staff          42 Mar 07 09:05 notes.md", e.Line())
}
