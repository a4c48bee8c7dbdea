package fileio

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemSource(t *testing.T) (afero.Fs, Source) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/srv/sub", 0755))
	require.NoError(t, afero.WriteFile(fs, "/srv/a.txt", []byte("alpha"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/srv/sub/b.txt", []byte("beta"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/secret", []byte("nope"), 0644))

	src, err := NewSource(fs, "/srv")
	require.NoError(t, err)
	return fs, src
}

func TestSource_ReadFile(t *testing.T) {
	_, src := newMemSource(t)

	b, err := src.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), b)

	b, err = src.ReadFile("sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("beta"), b)

	_, err = src.ReadFile("missing.txt")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestSource_CannotEscapeRoot(t *testing.T) {
	_, src := newMemSource(t)

	_, err := src.ReadFile("../secret")
	require.Error(t, err)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestNewSource_BadRoot(t *testing.T) {
	fs, _ := newMemSource(t)

	_, err := NewSource(fs, "/srv/a.txt")
	assert.Error(t, err)

	_, err = NewSource(fs, "/nowhere")
	assert.Error(t, err)
}

func TestFileSink_Appends(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := NewFileSink(fs, "/out/received.bin")
	require.NoError(t, fs.MkdirAll("/out", 0755))

	require.NoError(t, sink.Append([]byte("hello ")))
	require.NoError(t, sink.Append(nil))
	require.NoError(t, sink.Append([]byte("world")))

	b, err := afero.ReadFile(fs, "/out/received.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), b)
}

func TestFileSink_ExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f", []byte("old-"), 0644))

	require.NoError(t, NewFileSink(fs, "/f").Append([]byte("new")))

	b, err := afero.ReadFile(fs, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("old-new"), b)
}

func TestFileSink_ReadOnlyFs(t *testing.T) {
	sink := NewFileSink(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/f")
	assert.Error(t, sink.Append([]byte("x")))
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	require.NoError(t, sink.Append([]byte("ab")))
	require.NoError(t, sink.Append([]byte("c")))
	assert.Equal(t, "abc", buf.String())
}
