package m2pack

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flaneur2020/m2pack/m2pack/container"
	"github.com/flaneur2020/m2pack/m2pack/logger"
	"golang.org/x/sync/errgroup"
)

// ProgressCallback is called as work completes.
// current: units done so far
// total: total units
type ProgressCallback func(current int64, total int64)

// BuildStats contains statistics about a build
type BuildStats struct {
	Files      int
	Bytes      int64
	HeaderPath string
	DataPath   string
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Workers bounds concurrent insertions; runtime.NumCPU() when <= 0.
	Workers int
	// Exclude holds doublestar patterns matched against slash-separated
	// relative paths. Excluded files get no id.
	Exclude []string
	// DefaultCompression applies to extensions without a dedicated kind.
	DefaultCompression CompressionKind
	ContainerOptions   []container.Option
	// Progress receives (inserted files, total files). Calls are serialized.
	Progress ProgressCallback
}

type Builder interface {
	// BuildArchive packs every file under sourceDir into
	// destinationDir/archiveBaseName.{m2h,m2d}. The first failure aborts the
	// build and nothing is saved.
	BuildArchive(ctx context.Context, sourceDir, destinationDir, archiveBaseName string, mode container.Mode) (*BuildStats, error)
}

type builder struct {
	opts BuilderOptions
}

func NewBuilder(opts BuilderOptions) Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &builder{opts: opts}
}

func (b *builder) BuildArchive(ctx context.Context, sourceDir, destinationDir, archiveBaseName string, mode container.Mode) (*BuildStats, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, NewSourceNotFoundError(sourceDir, err)
	}
	if !info.IsDir() {
		return nil, NewSourceNotFoundError(sourceDir, fmt.Errorf("not a directory"))
	}
	if archiveBaseName == "" {
		return nil, fmt.Errorf("archive base name is empty")
	}
	for _, pattern := range b.opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	files, err := ScanFiles(sourceDir)
	if err != nil {
		return nil, err
	}
	files = b.filter(files)
	if uint64(len(files)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many files: %d", len(files))
	}
	logger.Info("Packing %d files from %s", len(files), sourceDir)

	archive, err := container.New(mode, b.opts.ContainerOptions...)
	if err != nil {
		return nil, err
	}

	stats := &BuildStats{
		Files:      len(files),
		HeaderPath: filepath.Join(destinationDir, archiveBaseName+container.HeaderExt),
		DataPath:   filepath.Join(destinationDir, archiveBaseName+container.DataExt),
	}

	var (
		mu    sync.Mutex
		done  int64
		total = int64(len(files))
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Workers)
	for i, file := range files {
		if egCtx.Err() != nil {
			break
		}
		id := uint32(i + 1)
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			size, err := b.insert(archive, id, file)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			stats.Bytes += size
			if b.opts.Progress != nil {
				b.opts.Progress(done, total)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := archive.SaveConcurrently(ctx, stats.HeaderPath, stats.DataPath); err != nil {
		return nil, fmt.Errorf("failed to save archive: %w", err)
	}
	logger.Info("Saved %s (%d entries)", stats.HeaderPath, archive.EntryCount())
	return stats, nil
}

func (b *builder) filter(files []DiscoveredFile) []DiscoveredFile {
	if len(b.opts.Exclude) == 0 {
		return files
	}
	kept := files[:0:0]
	for _, f := range files {
		if b.excluded(filepath.ToSlash(f.RelativePath)) {
			logger.Debug("Excluding %s", f.RelativePath)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func (b *builder) excluded(rel string) bool {
	for _, pattern := range b.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (b *builder) insert(archive *container.Archive, id uint32, file DiscoveredFile) (int64, error) {
	f, err := os.Open(file.FullPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", file.FullPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to stat %s: %w", file.FullPath, err)
	}

	draft := &container.EntryDraft{
		ID:          id,
		Name:        file.RelativePath,
		Size:        info.Size(),
		Compression: Classify(file.FullPath, b.opts.DefaultCompression),
		Info: container.EntryInfo{
			ID:   strconv.FormatUint(uint64(id), 10),
			Path: file.RelativePath,
		},
		Payload: f,
	}
	logger.Debug("Adding #%d %s (%s)", id, file.RelativePath, draft.Compression)
	if err := archive.Add(draft); err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", file.RelativePath, err)
	}
	return info.Size(), nil
}
