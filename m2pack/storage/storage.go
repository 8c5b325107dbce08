package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Storage abstracts ranged reads over a single data stream.
type Storage interface {
	Size() int64
	ReadRange(ctx context.Context, offset int64, length int64) (io.ReadCloser, error)
	Close() error
}

// FileStorage serves ranged reads from a data stream on local disk.
type FileStorage struct {
	f    *os.File
	size int64
}

// OpenFile opens path for ranged reads.
func OpenFile(path string) (*FileStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &FileStorage{f: f, size: info.Size()}, nil
}

// Size returns the length of the stream in bytes.
func (s *FileStorage) Size() int64 {
	return s.size
}

// ReadRange returns a reader over [offset, offset+length). A non-positive
// length reads to the end of the stream.
func (s *FileStorage) ReadRange(ctx context.Context, offset int64, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end, err := rangeEnd(s.size, offset, length)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(io.NewSectionReader(s.f, offset, end-offset)), nil
}

// Close releases the underlying file.
func (s *FileStorage) Close() error {
	return s.f.Close()
}

func rangeEnd(size, offset, length int64) (int64, error) {
	if offset < 0 || offset > size {
		return 0, fmt.Errorf("storage: invalid offset %d for stream of %d bytes", offset, size)
	}
	if length <= 0 {
		return size, nil
	}
	if offset+length > size {
		return 0, fmt.Errorf("storage: range %d+%d exceeds stream of %d bytes", offset, length, size)
	}
	return offset + length, nil
}
