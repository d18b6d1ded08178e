package configfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsNilFile(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	v, ok := f.Get("signal")
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestLoadParsesFlatMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeoutd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signal: KILL\nkill-after: 10s\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)

	v, ok := f.Get("signal")
	assert.True(t, ok)
	assert.Equal(t, "KILL", v)

	v, ok = f.Get("kill-after")
	assert.True(t, ok)
	assert.Equal(t, "10s", v)

	_, ok = f.Get("missing")
	assert.False(t, ok)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/to/timeoutd.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a\n- mapping\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
