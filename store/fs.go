package store

import (
	"os"

	"github.com/spf13/afero"
)

// FS is the filesystem every store/segment implementation is opened
// against. Using afero.Fs instead of the bare os package lets tests swap
// in afero.NewMemMapFs() instead of touching disk.
type FS = afero.Fs

// Exists reports whether path exists on fs, treating a stat failure other
// than "not exist" as an error rather than a missing file.
func Exists(fs FS, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
