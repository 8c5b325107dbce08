package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
	"github.com/flaneur2020/m2pack/m2pack/storage"
	"github.com/opencontainers/go-digest"
)

// Load opens a header/data pair read-only.
func Load(ctx context.Context, headerPath, dataPath string, opts ...Option) (*Archive, error) {
	header, err := os.Open(headerPath)
	if err != nil {
		return nil, fmt.Errorf("open header stream: %w", err)
	}
	defer header.Close()

	data, err := storage.OpenFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open data stream: %w", err)
	}

	a, err := LoadFrom(ctx, header, data, opts...)
	if err != nil {
		data.Close()
		return nil, corrupt(err).WithDetail("headerPath", headerPath).WithDetail("dataPath", dataPath)
	}
	return a, nil
}

func corrupt(err error) *m2errors.PackError {
	if pe, ok := err.(*m2errors.PackError); ok {
		return pe
	}
	return m2errors.ErrCorruptArchive.WithCause(err)
}

// LoadFrom decodes a header stream and binds it to an already opened data
// stream. The caller keeps ownership of data if an error is returned.
func LoadFrom(ctx context.Context, header io.Reader, data storage.Storage, opts ...Option) (*Archive, error) {
	o := buildOptions(opts)
	var s *sealer
	sealerFor := func() (*sealer, error) {
		if s == nil {
			var err error
			if s, err = newSealer(o.key); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	toc, mode, err := decodeHeader(header, sealerFor)
	if err != nil {
		return nil, m2errors.ErrCorruptArchive.WithCause(err)
	}
	if mode.sealsData() {
		if _, err := sealerFor(); err != nil {
			return nil, err
		}
	}

	if data.Size() != toc.DataSize {
		return nil, m2errors.ErrCorruptArchive.WithMessage("data stream does not belong to header").
			WithDetail("expectedSize", toc.DataSize).
			WithDetail("actualSize", data.Size())
	}
	if err := checkDataMagic(ctx, data); err != nil {
		return nil, err
	}

	records := make(map[uint32]*record, len(toc.Entries))
	for _, te := range toc.Entries {
		compression, err := ParseCompression(te.Compression)
		if err != nil {
			return nil, m2errors.ErrCorruptArchive.WithDetail("id", te.ID).WithCause(err)
		}
		if te.Offset < dataPreambleSize || te.StoredSize < 0 || te.Offset+te.StoredSize > toc.DataSize {
			return nil, m2errors.ErrCorruptArchive.WithMessage("entry range outside data stream").WithDetail("id", te.ID)
		}
		if _, exists := records[te.ID]; exists {
			return nil, m2errors.ErrDuplicateEntry.WithDetail("id", te.ID)
		}
		records[te.ID] = &record{Entry: Entry{
			ID:          te.ID,
			Name:        te.Name,
			Compression: compression,
			Info: EntryInfo{
				ID:           te.InfoID,
				Path:         te.InfoPath,
				RootFolderID: te.RootFolderID,
			},
			Size:       te.Size,
			StoredSize: te.StoredSize,
			Offset:     te.Offset,
			Digest:     te.Digest,
		}}
	}

	return &Archive{
		mode:    mode,
		sealer:  s,
		records: records,
		toc:     toc,
		data:    data,
	}, nil
}

func checkDataMagic(ctx context.Context, data storage.Storage) error {
	if data.Size() < dataPreambleSize {
		return m2errors.ErrCorruptArchive.WithMessage("data stream too short")
	}
	r, err := data.ReadRange(ctx, 0, dataPreambleSize)
	if err != nil {
		return m2errors.ErrCorruptArchive.WithCause(err)
	}
	defer r.Close()

	magic := make([]byte, dataPreambleSize)
	if _, err := io.ReadFull(r, magic); err != nil {
		return m2errors.ErrCorruptArchive.WithCause(err)
	}
	if !bytes.Equal(magic, dataMagic) {
		return m2errors.ErrCorruptArchive.WithMessage("bad data stream magic")
	}
	return nil
}

// Open returns the decoded payload of entry id, verified against its digest.
func (a *Archive) Open(ctx context.Context, id uint32) (io.ReadCloser, error) {
	raw, err := a.readEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (a *Archive) readEntry(ctx context.Context, id uint32) ([]byte, error) {
	a.mu.Lock()
	rec, ok := a.records[id]
	a.mu.Unlock()
	if !ok {
		return nil, m2errors.ErrEntryNotFound.WithDetail("id", id)
	}

	stored := rec.stored
	if a.data != nil && rec.StoredSize > 0 {
		r, err := a.data.ReadRange(ctx, rec.Offset, rec.StoredSize)
		if err != nil {
			return nil, fmt.Errorf("read entry %d: %w", id, err)
		}
		stored, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %d: %w", id, err)
		}
	}

	if a.mode.sealsData() {
		var err error
		if stored, err = a.sealer.open(stored); err != nil {
			return nil, m2errors.ErrCorruptArchive.WithDetail("id", id).WithCause(err)
		}
	}

	raw, err := decodePayload(rec.Compression, stored)
	if err != nil {
		return nil, m2errors.ErrCorruptArchive.WithDetail("id", id).WithCause(err)
	}
	if int64(len(raw)) != rec.Size || digest.FromBytes(raw) != rec.Digest {
		return nil, m2errors.ErrDigestMismatch.WithDetail("id", id).WithDetail("name", rec.Name)
	}
	return raw, nil
}

// Verify checks the data stream digest and every entry payload.
func (a *Archive) Verify(ctx context.Context) error {
	if a.data != nil {
		r, err := a.data.ReadRange(ctx, 0, 0)
		if err != nil {
			return err
		}
		got, err := digest.Canonical.FromReader(r)
		r.Close()
		if err != nil {
			return fmt.Errorf("digest data stream: %w", err)
		}
		if got != a.toc.DataDigest {
			return m2errors.ErrDigestMismatch.WithMessage("data stream digest mismatch").
				WithDetail("expected", a.toc.DataDigest.String()).
				WithDetail("actual", got.String())
		}
	}

	for _, rec := range a.sortedRecords() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.readEntry(ctx, rec.ID); err != nil {
			return err
		}
	}
	return nil
}
