package m2pack

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flaneur2020/m2pack/m2pack/container"
	"github.com/flaneur2020/m2pack/m2pack/logger"
)

const headerPattern = "**/*" + container.HeaderExt

// DiscoveredFile is a file found under a scan root.
type DiscoveredFile struct {
	FullPath     string
	RelativePath string // FullPath without the scan root; never starts with a separator
}

// HeaderDataPair is an archive's header stream and its data sibling.
type HeaderDataPair struct {
	HeaderPath string
	DataPath   string
}

// BaseName returns the shared file name stem of the pair.
func (p HeaderDataPair) BaseName() string {
	base := filepath.Base(p.HeaderPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// walkFiles calls fn for every non-directory entry below rootDir. A symlinked
// root is resolved first; symlinked directories inside the tree are skipped.
// fullPath stays under rootDir as given, rel is relative to it.
func walkFiles(rootDir string, fn func(fullPath, rel string) error) error {
	root := filepath.Clean(rootDir)
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				logger.Warn("Skipping symlinked directory %s", path)
				return nil
			}
		}

		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		return fn(filepath.Join(root, rel), rel)
	})
}

// ScanFiles lists every non-directory entry below rootDir, at any depth, in
// lexical walk order. The caller checks that rootDir exists.
func ScanFiles(rootDir string) ([]DiscoveredFile, error) {
	var files []DiscoveredFile
	err := walkFiles(rootDir, func(fullPath, rel string) error {
		files = append(files, DiscoveredFile{FullPath: fullPath, RelativePath: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rootDir, err)
	}
	return files, nil
}

// FindArchivePairs lazily walks rootDir for header streams and resolves each
// one's data sibling as it is reached. A failed resolution is yielded as an
// error element; the walk continues only while the consumer keeps ranging.
func FindArchivePairs(rootDir string) iter.Seq2[HeaderDataPair, error] {
	return func(yield func(HeaderDataPair, error) bool) {
		stopped := false

		err := walkFiles(rootDir, func(path, rel string) error {
			if ok, _ := doublestar.Match(headerPattern, filepath.ToSlash(rel)); !ok {
				return nil
			}

			dataPath, err := ResolveDataFile(path)
			if !yield(HeaderDataPair{HeaderPath: path, DataPath: dataPath}, err) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(HeaderDataPair{}, fmt.Errorf("scan %s: %w", rootDir, err))
		}
	}
}

// ResolveDataFile derives the data stream path of a header stream and checks
// that it exists.
func ResolveDataFile(headerPath string) (string, error) {
	dataPath := changeExtension(headerPath, container.DataExt)
	info, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataPath, NewMissingPairedFileError(headerPath, dataPath)
		}
		return dataPath, fmt.Errorf("stat %s: %w", dataPath, err)
	}
	if info.IsDir() {
		return dataPath, NewMissingPairedFileError(headerPath, dataPath)
	}
	return dataPath, nil
}

func changeExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
