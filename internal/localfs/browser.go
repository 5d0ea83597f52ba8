// Package localfs walks local directories for uploads.
package localfs

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FileEntry represents a regular file found on disk.
type FileEntry struct {
	Path    string    // Full path to the file
	Name    string    // Base name of the file
	Size    int64     // Size in bytes
	ModTime time.Time // Last modification time
}

// WalkOptions configures the behavior of WalkFiles.
type WalkOptions struct {
	// IncludeHidden includes hidden files and descends into hidden
	// directories. Default is false (both skipped).
	IncludeHidden bool
}

// WalkFunc is called for each regular file found during a walk.
type WalkFunc func(entry FileEntry) error

// WalkFiles calls fn for every regular file below root, in lexical order.
// Symlinks, devices and sockets are skipped, as are entries that cannot be
// read. root itself is never treated as hidden.
func WalkFiles(root string, opts WalkOptions, fn WalkFunc) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}

		if path != root && !opts.IncludeHidden && IsHiddenName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		return fn(FileEntry{
			Path:    path,
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// CollectFiles returns the paths of every regular file below root.
func CollectFiles(root string, opts WalkOptions) ([]string, error) {
	var paths []string
	err := WalkFiles(root, opts, func(entry FileEntry) error {
		paths = append(paths, entry.Path)
		return nil
	})
	return paths, err
}

// IsHiddenName reports whether a file name is hidden (starts with a dot).
// "." and ".." are not hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
