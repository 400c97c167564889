package sizes

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Aggregate returns the total byte size of all regular files below root.
// Directories contribute only through their contents. A missing root is a
// valid empty input and yields 0; traversal never follows symlinks, so
// upward-pointing links cannot produce cycles.
func Aggregate(root string) (int64, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// File disappeared between listing and stat; count it as absent.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// FileSize returns the byte size of a single regular file. The second
// return value reports whether the file was found; a missing asset is a
// normal condition (bundlers prune files the manifest still lists), never
// an error.
func FileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}
