package m2pack

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flaneur2020/m2pack/m2pack/container"
	"github.com/flaneur2020/m2pack/m2pack/logger"
)

// ExportStats contains statistics about a single archive export
type ExportStats struct {
	Entries  int // report lines written
	Skipped  int // entries without a name
	Warnings int
}

func (s *ExportStats) add(other *ExportStats) {
	s.Entries += other.Entries
	s.Skipped += other.Skipped
	s.Warnings += other.Warnings
}

// Exporter writes per-entry reports and feeds the two aggregate maps.
type Exporter struct {
	fileTypes   *AggregateMap
	rootFolders *AggregateMap
	opts        []container.Option
}

func NewExporter(fileTypes, rootFolders *AggregateMap, opts ...container.Option) *Exporter {
	return &Exporter{
		fileTypes:   fileTypes,
		rootFolders: rootFolders,
		opts:        opts,
	}
}

// ExportArchive loads one archive pair and writes its report to reportPath.
func (e *Exporter) ExportArchive(ctx context.Context, headerPath, dataPath, reportPath string) (*ExportStats, error) {
	archive, err := container.Load(ctx, headerPath, dataPath, e.opts...)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	if err := os.MkdirAll(filepath.Dir(reportPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	out, err := os.Create(reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	defer out.Close()

	logger.Info("Exporting %s (%d entries) to %s", headerPath, archive.EntryCount(), reportPath)

	stats := &ExportStats{}
	w := bufio.NewWriter(out)
	for _, entry := range archive.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if strings.TrimSpace(entry.Name) == "" {
			logger.Warn("Skipping entry: %v", NewEntryNameEmptyError(headerPath, entry.ID))
			stats.Skipped++
			stats.Warnings++
			continue
		}

		e.fileTypes.Merge(entryExtension(entry.Name), entry.Compression.String())

		if root := rootDirectory(entry.Name); root != "" {
			if entry.Info.RootFolderID == "" {
				logger.Warn("%v", NewRootFolderIDMissingError(headerPath, entry.ID, entry.Name, root))
				stats.Warnings++
			}
			e.rootFolders.Merge(root, entry.Info.RootFolderID)
		}

		if _, err := w.WriteString(FormatReportLine(entry)); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		stats.Entries++
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close report: %w", err)
	}
	return stats, nil
}

// FormatReportLine renders the report line of one entry, newline included.
func FormatReportLine(entry container.Entry) string {
	return fmt.Sprintf("%06d - Type:%s; Info_Id:%s; Info_Path=%s; Info_RootFolderId=%s\n",
		entry.ID, entry.Compression, entry.Info.ID, entry.Info.Path, entry.Info.RootFolderID)
}

// entryExtension returns the extension of an entry name, dot included. Both
// '/' and '\' are treated as separators since names keep the packing host's.
func entryExtension(name string) string {
	base := name[strings.LastIndexAny(name, `/\`)+1:]
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return base[i:]
}

// rootDirectory returns the first path segment of a name that has at least
// one separator.
func rootDirectory(name string) string {
	i := strings.IndexAny(name, `/\`)
	if i <= 0 {
		return ""
	}
	return name[:i]
}
