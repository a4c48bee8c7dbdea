// Package pathutil locates configuration files and data directories.
package pathutil

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// LocalDir is the system-wide data directory.
const LocalDir = "/usr/local/skycoin/skytftp"

// DataDir returns the per-user data directory, ~/.skycoin/skytftp.
func DataDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "failed to find home directory")
	}
	return filepath.Join(home, ".skycoin", "skytftp"), nil
}

// EnsureDir expands and absolutizes path and creates the directory if it is missing.
func EnsureDir(path string) (string, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to expand path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to expand path")
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		if err := os.MkdirAll(absPath, 0750); err != nil {
			return "", errors.Wrap(err, "failed to create dir")
		}
	}
	return absPath, nil
}

// AtomicWriteFile writes data to a temp file next to filename and renames it into place.
func AtomicWriteFile(filename string, data []byte) (err error) {
	dir, name := filepath.Split(filename)
	f, err := ioutil.TempFile(dir, name)
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name()) // nolint
		}
	}()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(f.Name(), 0600)
	}
	if err == nil {
		err = os.Rename(f.Name(), filename)
	}
	return err
}
