package m2pack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flaneur2020/m2pack/m2pack/container"
	"github.com/flaneur2020/m2pack/m2pack/logger"
	"golang.org/x/sync/errgroup"
)

const (
	ReportFileName         = "export.txt"
	FileTypeSummaryName    = "filetypes.txt"
	RootFolderSummaryName  = "rootfolders.txt"
	FileTypeSummaryWidth   = 12
	RootFolderSummaryWidth = 24
)

// SourceKind is how a batch source path is interpreted.
type SourceKind int

const (
	// SourceDirectoryScan exports every archive pair found under a directory.
	SourceDirectoryScan SourceKind = iota
	// SourceSingleArchive exports the one archive named by a header stem.
	SourceSingleArchive
)

func (k SourceKind) String() string {
	switch k {
	case SourceDirectoryScan:
		return "directory"
	case SourceSingleArchive:
		return "single"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// BatchStats contains statistics about a batch export
type BatchStats struct {
	Kind     SourceKind
	Archives int
	ExportStats
}

// BatchExporter exports one or many archives and writes the two summary files.
type BatchExporter struct {
	// Concurrency bounds archives exported at once; 1 (sequential, in
	// discovery order) when <= 0.
	Concurrency      int
	ContainerOptions []container.Option
	// OnArchive, if set, is called after each archive is exported.
	OnArchive func(pair HeaderDataPair, stats *ExportStats)
}

// ResolveSource decides once how sourcePath is treated. For single archives
// it also returns the normalized header path.
func ResolveSource(sourcePath string) (SourceKind, string, error) {
	info, err := os.Stat(sourcePath)
	if err == nil && info.IsDir() {
		return SourceDirectoryScan, "", nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, "", fmt.Errorf("stat %s: %w", sourcePath, err)
	}
	if err != nil && hasTrailingSeparator(sourcePath) {
		return SourceDirectoryScan, "", NewSourceNotFoundError(sourcePath, err)
	}

	headerPath := changeExtension(sourcePath, container.HeaderExt)
	if info, err := os.Stat(headerPath); err != nil || info.IsDir() {
		return SourceSingleArchive, headerPath, NewSourceFileNotFoundError(headerPath)
	}
	return SourceSingleArchive, headerPath, nil
}

func hasTrailingSeparator(path string) bool {
	return strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator))
}

// ReportPath derives where the report of an archive is written. relDir is the
// archive's directory relative to the batch source, "" or "." when there is none.
func ReportPath(destinationDir, relDir, archiveBaseName string) string {
	if relDir == "" || relDir == "." {
		return filepath.Join(destinationDir, archiveBaseName, ReportFileName)
	}
	flat := strings.ReplaceAll(relDir, string(filepath.Separator), "_")
	flat = strings.ReplaceAll(flat, "/", "_")
	return filepath.Join(destinationDir, flat, archiveBaseName, ReportFileName)
}

// Run exports sourcePath into destinationDir. Any archive failure aborts the
// run before the summary files are written.
func (b *BatchExporter) Run(ctx context.Context, sourcePath, destinationDir string) (*BatchStats, error) {
	kind, headerPath, err := ResolveSource(sourcePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	fileTypes := NewAggregateMap()
	rootFolders := NewAggregateMap()
	exporter := NewExporter(fileTypes, rootFolders, b.ContainerOptions...)
	stats := &BatchStats{Kind: kind}

	switch kind {
	case SourceDirectoryScan:
		err = b.runDirectory(ctx, exporter, sourcePath, destinationDir, stats)
	case SourceSingleArchive:
		err = b.runSingle(ctx, exporter, headerPath, destinationDir, stats)
	}
	if err != nil {
		return nil, err
	}

	if err := writeSummaryFile(filepath.Join(destinationDir, FileTypeSummaryName), fileTypes, FileTypeSummaryWidth); err != nil {
		return nil, err
	}
	if err := writeSummaryFile(filepath.Join(destinationDir, RootFolderSummaryName), rootFolders, RootFolderSummaryWidth); err != nil {
		return nil, err
	}
	logger.Info("Exported %d archives (%d entries, %d warnings)", stats.Archives, stats.Entries, stats.Warnings)
	return stats, nil
}

func (b *BatchExporter) runSingle(ctx context.Context, exporter *Exporter, headerPath, destinationDir string, stats *BatchStats) error {
	dataPath, err := ResolveDataFile(headerPath)
	if err != nil {
		return err
	}
	pair := HeaderDataPair{HeaderPath: headerPath, DataPath: dataPath}
	s, err := exporter.ExportArchive(ctx, pair.HeaderPath, pair.DataPath, ReportPath(destinationDir, "", pair.BaseName()))
	if err != nil {
		return err
	}
	b.record(pair, s, stats, nil)
	return nil
}

func (b *BatchExporter) runDirectory(ctx context.Context, exporter *Exporter, sourcePath, destinationDir string, stats *BatchStats) error {
	limit := b.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for pair, err := range FindArchivePairs(sourcePath) {
		if err != nil {
			eg.Wait()
			return err
		}
		if egCtx.Err() != nil {
			break
		}

		relDir, err := filepath.Rel(filepath.Clean(sourcePath), filepath.Dir(pair.HeaderPath))
		if err != nil {
			eg.Wait()
			return fmt.Errorf("relative path of %s: %w", pair.HeaderPath, err)
		}
		reportPath := ReportPath(destinationDir, relDir, pair.BaseName())

		eg.Go(func() error {
			s, err := exporter.ExportArchive(egCtx, pair.HeaderPath, pair.DataPath, reportPath)
			if err != nil {
				return fmt.Errorf("export %s: %w", pair.HeaderPath, err)
			}
			b.record(pair, s, stats, &mu)
			return nil
		})
	}
	return eg.Wait()
}

func (b *BatchExporter) record(pair HeaderDataPair, s *ExportStats, stats *BatchStats, mu *sync.Mutex) {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	stats.Archives++
	stats.add(s)
	if b.OnArchive != nil {
		b.OnArchive(pair, s)
	}
}

func writeSummaryFile(path string, m *AggregateMap, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	if err := m.WriteSummary(f, width); err != nil {
		f.Close()
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close summary %s: %w", path, err)
	}
	return nil
}
