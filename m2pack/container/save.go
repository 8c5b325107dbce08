package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// SaveConcurrently writes the header and data streams in parallel. Each stream
// goes to a temporary sibling first; both are renamed into place only after
// both writes succeed, otherwise the temporaries are removed.
func (a *Archive) SaveConcurrently(ctx context.Context, headerPath, dataPath string) error {
	recs := a.sortedRecords()

	toc := &TOC{
		Version: tocVersion,
		Mode:    a.mode.String(),
		Entries: make([]*TOCEntry, len(recs)),
	}

	dataDigester := digest.Canonical.Digester()
	dataDigester.Hash().Write(dataMagic)
	offset := int64(dataPreambleSize)
	for i, rec := range recs {
		toc.Entries[i] = &TOCEntry{
			ID:           rec.ID,
			Name:         rec.Name,
			Compression:  rec.Compression.String(),
			Offset:       offset,
			StoredSize:   rec.StoredSize,
			Size:         rec.Size,
			Digest:       rec.Digest,
			InfoID:       rec.Info.ID,
			InfoPath:     rec.Info.Path,
			RootFolderID: rec.Info.RootFolderID,
		}
		dataDigester.Hash().Write(rec.stored)
		offset += rec.StoredSize
	}
	toc.DataSize = offset
	toc.DataDigest = dataDigester.Digest()

	header, err := encodeHeader(toc, a.mode, a.sealer)
	if err != nil {
		return err
	}

	var headerTmp, dataTmp string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		headerTmp, err = writeTemp(egCtx, headerPath, [][]byte{header})
		return err
	})
	eg.Go(func() error {
		chunks := make([][]byte, 0, len(recs)+1)
		chunks = append(chunks, dataMagic)
		for _, rec := range recs {
			chunks = append(chunks, rec.stored)
		}
		var err error
		dataTmp, err = writeTemp(egCtx, dataPath, chunks)
		return err
	})

	if err := eg.Wait(); err != nil {
		removeIfSet(headerTmp)
		removeIfSet(dataTmp)
		return err
	}

	if err := os.Rename(dataTmp, dataPath); err != nil {
		removeIfSet(headerTmp)
		removeIfSet(dataTmp)
		return fmt.Errorf("rename data stream: %w", err)
	}
	if err := os.Rename(headerTmp, headerPath); err != nil {
		removeIfSet(headerTmp)
		return fmt.Errorf("rename header stream: %w", err)
	}
	return nil
}

func writeTemp(ctx context.Context, target string, chunks [][]byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", target, err)
	}
	name := f.Name()

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			f.Close()
			return name, err
		}
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			return name, fmt.Errorf("write %s: %w", target, err)
		}
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return name, fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return name, fmt.Errorf("sync %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return name, fmt.Errorf("close %s: %w", target, err)
	}
	return name, nil
}

func removeIfSet(path string) {
	if path != "" {
		os.Remove(path)
	}
}
