package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func readAll(t *testing.T, s Storage, offset, length int64) string {
	t.Helper()
	r, err := s.ReadRange(context.Background(), offset, length)
	if err != nil {
		t.Fatalf("ReadRange(%d, %d) error = %v", offset, length, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll error = %v", err)
	}
	return string(b)
}

func TestStorageRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.m2d")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	fileStorage, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer fileStorage.Close()

	backends := map[string]Storage{
		"file": fileStorage,
		"mock": NewMockStorage([]byte("0123456789")),
	}

	tests := []struct {
		name   string
		offset int64
		length int64
		want   string
	}{
		{name: "whole stream", offset: 0, length: 0, want: "0123456789"},
		{name: "middle", offset: 3, length: 4, want: "3456"},
		{name: "tail", offset: 7, length: -1, want: "789"},
		{name: "empty at end", offset: 10, length: 0, want: ""},
	}

	for backendName, s := range backends {
		if s.Size() != 10 {
			t.Errorf("%s: Size() = %d, want 10", backendName, s.Size())
		}
		for _, tt := range tests {
			t.Run(backendName+"/"+tt.name, func(t *testing.T) {
				if got := readAll(t, s, tt.offset, tt.length); got != tt.want {
					t.Errorf("ReadRange() = %q, want %q", got, tt.want)
				}
			})
		}
	}
}

func TestStorageInvalidRanges(t *testing.T) {
	s := NewMockStorage([]byte("abc"))

	if _, err := s.ReadRange(context.Background(), 4, 1); err == nil {
		t.Error("expected error for offset past end")
	}
	if _, err := s.ReadRange(context.Background(), 1, 5); err == nil {
		t.Error("expected error for range past end")
	}
	if _, err := s.ReadRange(context.Background(), -1, 1); err == nil {
		t.Error("expected error for negative offset")
	}
}

func TestOpenFileMissing(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.m2d")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMockStorageClose(t *testing.T) {
	s := NewMockStorage(nil)
	if s.Closed() {
		t.Fatal("new storage reports closed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !s.Closed() {
		t.Error("Close() did not mark storage closed")
	}
}
