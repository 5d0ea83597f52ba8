package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tgdrive/tgdrive/internal/models"
	"github.com/tgdrive/tgdrive/internal/progress"
	"github.com/tgdrive/tgdrive/internal/state"
)

const timeLayout = "2006-01-02 15:04"

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// printListing writes folders first, then files.
func printListing(out io.Writer, listing state.FolderListing) {
	w := newTable(out)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tCREATED")
	for _, d := range listing.Folders {
		fmt.Fprintf(w, "%d\t%s/\t-\t%s\n", d.ID, d.Name, formatTime(d.Created()))
	}
	for _, f := range listing.Files {
		fmt.Fprintf(w, "%d\t%s%s\t%s\t%s\n", f.ID, f.Name, starMark(f), progress.FormatBytes(f.Size), formatTime(f.Created()))
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d folders, %d files, %s\n", len(listing.Folders), len(listing.Files), progress.FormatBytes(listing.TotalBytes()))
}

// printFiles writes a flat file list as returned by the view endpoints.
func printFiles(out io.Writer, files []models.FileMeta, empty string) {
	if len(files) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tFOLDER\tCREATED")
	for _, f := range files {
		fmt.Fprintf(w, "%d\t%s%s\t%s\t%d\t%s\n", f.ID, f.Name, starMark(f), progress.FormatBytes(f.Size), f.FolderID, formatTime(f.Created()))
	}
	w.Flush()
}

func printVersions(out io.Writer, versions []models.FileVersion) {
	if len(versions) == 0 {
		fmt.Fprintln(out, "No versions found")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "VERSION\tSIZE\tCREATED")
	for _, v := range versions {
		created := v.CreatedAt
		if created == "" {
			created = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.VersionID, progress.FormatBytes(v.Size), created)
	}
	w.Flush()
}

func printStorage(out io.Writer, s state.StorageSummary) {
	fmt.Fprintf(out, "Used: %s in %d files\n", progress.FormatBytes(s.TotalBytesUsed), s.TotalFileCount)
	if s.Source.Approximate() {
		fmt.Fprintf(out, "(approximate: computed from %s)\n", s.Source)
	}
}

func starMark(f models.FileMeta) string {
	if f.Starred {
		return " *"
	}
	return ""
}
