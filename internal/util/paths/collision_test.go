package paths

import (
	"path/filepath"
	"testing"
)

func TestResolveCollisions_NoCollisions(t *testing.T) {
	files := []FileForDownload{
		{FileID: 1, Name: "file1.zip", LocalPath: "/dest/file1.zip", Size: 100},
		{FileID: 2, Name: "file2.zip", LocalPath: "/dest/file2.zip", Size: 200},
		{FileID: 3, Name: "file3.zip", LocalPath: "/dest/file3.zip", Size: 300},
	}

	result, count := ResolveCollisions(files)

	if count != 0 {
		t.Errorf("expected 0 collisions, got %d", count)
	}
	for i, want := range []string{"/dest/file1.zip", "/dest/file2.zip", "/dest/file3.zip"} {
		if result[i].LocalPath != want {
			t.Errorf("expected %s, got %s", want, result[i].LocalPath)
		}
	}
}

func TestResolveCollisions_TwoDuplicates(t *testing.T) {
	files := []FileForDownload{
		{FileID: 12, Name: "output.zip", LocalPath: "/dest/output.zip", Size: 100},
		{FileID: 31, Name: "output.zip", LocalPath: "/dest/output.zip", Size: 200},
	}

	result, count := ResolveCollisions(files)

	if count != 2 {
		t.Errorf("expected 2 collisions, got %d", count)
	}
	if result[0].LocalPath != "/dest/output_12.zip" {
		t.Errorf("expected /dest/output_12.zip, got %s", result[0].LocalPath)
	}
	if result[1].LocalPath != "/dest/output_31.zip" {
		t.Errorf("expected /dest/output_31.zip, got %s", result[1].LocalPath)
	}
}

func TestResolveCollisions_NoExtension(t *testing.T) {
	files := []FileForDownload{
		{FileID: 7, LocalPath: "/dest/README"},
		{FileID: 8, LocalPath: "/dest/README"},
	}

	result, _ := ResolveCollisions(files)

	if result[0].LocalPath != "/dest/README_7" || result[1].LocalPath != "/dest/README_8" {
		t.Errorf("unexpected paths: %s, %s", result[0].LocalPath, result[1].LocalPath)
	}
}

func TestResolveCollisions_Empty(t *testing.T) {
	result, count := ResolveCollisions(nil)
	if count != 0 || len(result) != 0 {
		t.Errorf("expected empty result, got %v (%d)", result, count)
	}
}

func TestPlanDownloads(t *testing.T) {
	dest := filepath.Join("out", "dir")
	files := []FileForDownload{
		{FileID: 1, Name: "a.txt"},
		{FileID: 2, Name: "../../etc/passwd"},
		{FileID: 3, Name: ""},
		{FileID: 4, Name: "a.txt"},
	}

	result, count := PlanDownloads(dest, files)

	if count != 2 {
		t.Errorf("expected 2 collisions, got %d", count)
	}
	want := []string{
		filepath.Join(dest, "a_1.txt"),
		filepath.Join(dest, "passwd"),
		filepath.Join(dest, "file_3"),
		filepath.Join(dest, "a_4.txt"),
	}
	for i := range want {
		if result[i].LocalPath != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], result[i].LocalPath)
		}
	}
}
