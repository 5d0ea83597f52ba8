// Package paths decides where downloaded files land on disk.
package paths

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/tgdrive/tgdrive/internal/util/sanitize"
)

// FileForDownload is one remote file mapped to a local destination.
type FileForDownload struct {
	FileID    int64
	Name      string // name as stored by the backend
	LocalPath string
	Size      int64
}

// PlanDownloads maps each file to destDir/<sanitized name> and resolves
// collisions between them.
func PlanDownloads(destDir string, files []FileForDownload) ([]FileForDownload, int) {
	for i := range files {
		name := sanitize.FileName(files[i].Name)
		if name == "" {
			name = "file_" + strconv.FormatInt(files[i].FileID, 10)
		}
		files[i].LocalPath = filepath.Join(destDir, name)
	}
	return ResolveCollisions(files)
}

// ResolveCollisions takes a list of files and ensures all LocalPaths are unique.
// When multiple files share a LocalPath, each gets its FileID inserted before
// the extension: two "output.zip" become output_12.zip and output_31.zip.
//
// Returns the modified list (same slice, modified in place) and count of files
// that were involved in collisions.
func ResolveCollisions(files []FileForDownload) ([]FileForDownload, int) {
	if len(files) == 0 {
		return files, 0
	}

	pathToIndices := make(map[string][]int)
	for i, f := range files {
		pathToIndices[f.LocalPath] = append(pathToIndices[f.LocalPath], i)
	}

	collisionCount := 0
	for path, indices := range pathToIndices {
		if len(indices) <= 1 {
			continue
		}

		collisionCount += len(indices)
		for _, idx := range indices {
			f := &files[idx]
			ext := filepath.Ext(path)
			base := path[:len(path)-len(ext)]
			f.LocalPath = fmt.Sprintf("%s_%d%s", base, f.FileID, ext)
		}
	}

	return files, collisionCount
}
