// Package fileio provides the file collaborators of a transfer: a read-only
// source of whole files and an append-only output sink.
package fileio

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrNotFound is returned by Source.ReadFile for missing files.
var ErrNotFound = errors.New("file not found")

// Source reads whole files by name.
type Source interface {
	ReadFile(name string) ([]byte, error)
}

// Sink receives transferred bytes in order.
type Sink interface {
	Append(p []byte) error
}

type fsSource struct {
	fs afero.Fs
}

// NewSource returns a Source reading from fs. Names are resolved under root and
// cannot escape it.
func NewSource(fs afero.Fs, root string) (Source, error) {
	if _, ok := fs.(*afero.OsFs); ok {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve root %s", root)
		}
		root = abs
	}
	fi, err := fs.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat root %s", root)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("root %s is not a directory", root)
	}
	return &fsSource{fs: afero.NewBasePathFs(fs, root)}, nil
}

// NewOsSource returns a Source over the local filesystem.
func NewOsSource(root string) (Source, error) {
	return NewSource(afero.NewOsFs(), root)
}

func (s *fsSource) ReadFile(name string) ([]byte, error) {
	b, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrap(ErrNotFound, name)
		}
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}
	return b, nil
}

type fileSink struct {
	fs   afero.Fs
	path string
}

// NewFileSink returns a Sink appending to path on fs. The file is opened and
// closed on every Append; it is created on first use.
func NewFileSink(fs afero.Fs, path string) Sink {
	return &fileSink{fs: fs, path: path}
}

func (s *fileSink) Append(p []byte) (err error) {
	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", s.path)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if _, err = f.Write(p); err != nil {
		return errors.Wrapf(err, "failed to append to %s", s.path)
	}
	return nil
}

type writerSink struct {
	w io.Writer
}

// NewWriterSink returns a Sink writing to w.
func NewWriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

func (s *writerSink) Append(p []byte) error {
	_, err := s.w.Write(p)
	return err
}
