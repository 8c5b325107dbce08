package container

import (
	"fmt"
	"io"
	"sort"
	"sync"

	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
	"github.com/flaneur2020/m2pack/m2pack/storage"
	"github.com/opencontainers/go-digest"
)

// EntryInfo is the descriptive metadata recorded alongside an entry.
type EntryInfo struct {
	ID           string
	Path         string
	RootFolderID string
}

// EntryDraft is an entry waiting to be inserted. Add takes ownership of
// Payload and closes it.
type EntryDraft struct {
	ID          uint32
	Name        string
	Size        int64 // expected payload length, -1 if unknown
	Compression Compression
	Info        EntryInfo
	Payload     io.ReadCloser
}

// Entry is the read-only view of an entry held by an archive.
type Entry struct {
	ID          uint32
	Name        string
	Compression Compression
	Info        EntryInfo
	Size        int64 // original payload length
	StoredSize  int64 // length in the data stream
	Offset      int64 // position in the data stream
	Digest      digest.Digest
}

type record struct {
	Entry
	stored []byte
}

// Archive is a two-stream container. Archives built with New accept
// concurrent Add calls; archives returned by Load are read-only.
type Archive struct {
	mode   Mode
	sealer *sealer

	mu      sync.Mutex
	records map[uint32]*record

	// set when loaded
	toc  *TOC
	data storage.Storage
}

type options struct {
	key []byte
}

// Option configures an archive.
type Option func(*options)

// WithKey sets the key material used by the sealed modes.
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = append([]byte(nil), key...)
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New creates an empty archive bound to mode.
func New(mode Mode, opts ...Option) (*Archive, error) {
	if !mode.Valid() {
		return nil, m2errors.ErrInvalidMode.WithDetail("mode", uint8(mode))
	}
	o := buildOptions(opts)
	s, err := newSealer(o.key)
	if err != nil {
		return nil, fmt.Errorf("init sealer: %w", err)
	}
	return &Archive{
		mode:    mode,
		sealer:  s,
		records: make(map[uint32]*record),
	}, nil
}

// Mode returns the archive mode.
func (a *Archive) Mode() Mode {
	return a.mode
}

// Add reads, encodes and stores a draft. It is safe for concurrent use.
func (a *Archive) Add(draft *EntryDraft) error {
	if draft == nil {
		return fmt.Errorf("nil entry draft")
	}
	if draft.Payload == nil {
		return fmt.Errorf("entry %d (%s) has no payload", draft.ID, draft.Name)
	}
	raw, err := io.ReadAll(draft.Payload)
	closeErr := draft.Payload.Close()
	if err != nil {
		return fmt.Errorf("read entry %d (%s): %w", draft.ID, draft.Name, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close entry %d (%s): %w", draft.ID, draft.Name, closeErr)
	}

	if a.toc != nil {
		return fmt.Errorf("archive is read-only")
	}
	if draft.ID == 0 {
		return fmt.Errorf("entry %s has id 0", draft.Name)
	}
	if !draft.Compression.Valid() {
		return fmt.Errorf("entry %d (%s): invalid compression %d", draft.ID, draft.Name, uint8(draft.Compression))
	}
	if draft.Size >= 0 && int64(len(raw)) != draft.Size {
		return fmt.Errorf("entry %d (%s): read %d bytes, expected %d", draft.ID, draft.Name, len(raw), draft.Size)
	}

	stored, err := encodePayload(draft.Compression, raw)
	if err != nil {
		return fmt.Errorf("encode entry %d (%s): %w", draft.ID, draft.Name, err)
	}
	if a.mode.sealsData() {
		if stored, err = a.sealer.seal(stored); err != nil {
			return fmt.Errorf("seal entry %d (%s): %w", draft.ID, draft.Name, err)
		}
	}

	rec := &record{
		Entry: Entry{
			ID:          draft.ID,
			Name:        draft.Name,
			Compression: draft.Compression,
			Info:        draft.Info,
			Size:        int64(len(raw)),
			StoredSize:  int64(len(stored)),
			Digest:      digest.FromBytes(raw),
		},
		stored: stored,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.records[draft.ID]; exists {
		return m2errors.ErrDuplicateEntry.WithDetail("id", draft.ID).WithDetail("name", draft.Name)
	}
	a.records[draft.ID] = rec
	return nil
}

// EntryCount returns the number of entries.
func (a *Archive) EntryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Entries returns the entries in ascending id order.
func (a *Archive) Entries() []Entry {
	recs := a.sortedRecords()
	entries := make([]Entry, len(recs))
	for i, rec := range recs {
		entries[i] = rec.Entry
	}
	return entries
}

// Entry looks up a single entry by id.
func (a *Archive) Entry(id uint32) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	if !ok {
		return Entry{}, false
	}
	return rec.Entry, true
}

func (a *Archive) sortedRecords() []*record {
	a.mu.Lock()
	recs := make([]*record, 0, len(a.records))
	for _, rec := range a.records {
		recs = append(recs, rec)
	}
	a.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ID < recs[j].ID
	})
	return recs
}

// Close releases the data stream of a loaded archive.
func (a *Archive) Close() error {
	if a.data == nil {
		return nil
	}
	return a.data.Close()
}
