package pathutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "pathutil")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) }) // nolint
	return dir
}

func TestFindConfigPath(t *testing.T) {
	dir := tempDir(t)
	existing := filepath.Join(dir, "home.json")
	require.NoError(t, ioutil.WriteFile(existing, []byte("{}"), 0600))

	defaults := ConfigPaths{
		WorkingDirLoc: filepath.Join(dir, "missing.json"),
		HomeLoc:       existing,
		LocalLoc:      filepath.Join(dir, "local.json"),
	}

	t.Run("args first", func(t *testing.T) {
		path, err := FindConfigPath([]string{"a.json"}, 0, "", defaults)
		require.NoError(t, err)
		assert.Equal(t, "a.json", path)
	})

	t.Run("env", func(t *testing.T) {
		require.NoError(t, os.Setenv("SKYTFTP_TEST_CONFIG", "env.json"))
		defer os.Unsetenv("SKYTFTP_TEST_CONFIG") // nolint

		path, err := FindConfigPath(nil, 0, "SKYTFTP_TEST_CONFIG", defaults)
		require.NoError(t, err)
		assert.Equal(t, "env.json", path)
	})

	t.Run("first existing default", func(t *testing.T) {
		path, err := FindConfigPath([]string{"ignored.json"}, -1, "", defaults)
		require.NoError(t, err)
		assert.Equal(t, existing, path)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, err := FindConfigPath(nil, 0, "", ConfigPaths{LocalLoc: filepath.Join(dir, "nope.json")})
		assert.Equal(t, ErrConfigNotFound, err)
	})
}

func TestConfigLocationType_Set(t *testing.T) {
	var loc ConfigLocationType
	require.NoError(t, loc.Set("home"))
	assert.Equal(t, HomeLoc, loc)
	assert.Error(t, loc.Set("cloud"))

	_, err := ConfigPaths{}.Get(LocalLoc)
	assert.Error(t, err)
}

func TestWriteJSONConfig(t *testing.T) {
	dir := tempDir(t)
	out := filepath.Join(dir, "nested", "conf.json")
	conf := map[string]int{"max_attempts": 6}

	require.NoError(t, WriteJSONConfig(conf, out, false))
	raw, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_attempts": 6}`, string(raw))

	assert.Error(t, WriteJSONConfig(conf, out, false))

	conf["max_attempts"] = 3
	require.NoError(t, WriteJSONConfig(conf, out, true))
	raw, err = ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_attempts": 3}`, string(raw))
}

func TestEnsureDir(t *testing.T) {
	dir := tempDir(t)
	path, err := EnsureDir(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	again, err := EnsureDir(path)
	require.NoError(t, err)
	assert.Equal(t, path, again)
}
