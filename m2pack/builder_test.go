package m2pack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/flaneur2020/m2pack/m2pack/container"
	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
)

func buildTestArchive(t *testing.T, sourceDir, destDir, name string, opts BuilderOptions) *BuildStats {
	t.Helper()
	stats, err := NewBuilder(opts).BuildArchive(context.Background(), sourceDir, destDir, name, container.ModeStandard)
	if err != nil {
		t.Fatalf("BuildArchive() error = %v", err)
	}
	return stats
}

func loadTestArchive(t *testing.T, stats *BuildStats) *container.Archive {
	t.Helper()
	a, err := container.Load(context.Background(), stats.HeaderPath, stats.DataPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestBuildArchiveScenario(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out", "nested")
	writeFiles(t, src, map[string]string{
		"a/icon.png":  "0123456789",
		"b/data.zlib": "01234567890123456789",
	})

	stats := buildTestArchive(t, src, dest, "archive", BuilderOptions{})
	if stats.Files != 2 || stats.Bytes != 30 {
		t.Errorf("stats = %+v, want 2 files / 30 bytes", stats)
	}
	for _, p := range []string{filepath.Join(dest, "archive.m2h"), filepath.Join(dest, "archive.m2d")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}

	entries := loadTestArchive(t, stats).Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	want := []struct {
		name string
		kind CompressionKind
		size int64
	}{
		{name: filepath.Join("a", "icon.png"), kind: Png, size: 10},
		{name: filepath.Join("b", "data.zlib"), kind: Zlib, size: 20},
	}
	for i, e := range entries {
		if e.ID != uint32(i+1) || e.Name != want[i].name || e.Compression != want[i].kind || e.Size != want[i].size {
			t.Errorf("entries[%d] = %+v, want %+v", i, e, want[i])
		}
		if e.Info.ID != strconv.Itoa(i+1) || e.Info.Path != want[i].name || e.Info.RootFolderID != "" {
			t.Errorf("entries[%d].Info = %+v", i, e.Info)
		}
	}
}

func TestBuildArchiveIDsFollowDiscoveryOrder(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[filepath.ToSlash(filepath.Join("d"+strconv.Itoa(i%5), "f"+strconv.Itoa(i)+".bin"))] = strconv.Itoa(i)
	}
	writeFiles(t, src, files)

	discovered, err := ScanFiles(src)
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{1, 8} {
		stats := buildTestArchive(t, src, t.TempDir(), "ids", BuilderOptions{Workers: workers})
		entries := loadTestArchive(t, stats).Entries()
		if len(entries) != len(discovered) {
			t.Fatalf("workers=%d: %d entries, want %d", workers, len(entries), len(discovered))
		}
		for i, e := range entries {
			if e.ID != uint32(i+1) {
				t.Fatalf("workers=%d: entries[%d].ID = %d (gap or duplicate)", workers, i, e.ID)
			}
			if e.Name != discovered[i].RelativePath {
				t.Errorf("workers=%d: id %d name = %q, want %q", workers, e.ID, e.Name, discovered[i].RelativePath)
			}
		}
	}
}

func TestBuildArchiveEmptySource(t *testing.T) {
	stats := buildTestArchive(t, t.TempDir(), t.TempDir(), "empty", BuilderOptions{})
	if stats.Files != 0 {
		t.Errorf("Files = %d, want 0", stats.Files)
	}
	if n := loadTestArchive(t, stats).EntryCount(); n != 0 {
		t.Errorf("EntryCount() = %d, want 0", n)
	}
}

func TestBuildArchiveMissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "dest")
	_, err := NewBuilder(BuilderOptions{}).BuildArchive(context.Background(), filepath.Join(t.TempDir(), "nope"), dest, "a", container.ModeStandard)
	if !errors.Is(err, m2errors.ErrSourceNotFound) {
		t.Fatalf("BuildArchive() error = %v, want ErrSourceNotFound", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination was created for a failed build: %v", err)
	}
}

func TestBuildArchiveFailsFast(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "a", "c.txt": "c"})
	if err := os.Symlink(filepath.Join(src, "does-not-exist"), filepath.Join(src, "b.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	dest := t.TempDir()

	_, err := NewBuilder(BuilderOptions{Workers: 2}).BuildArchive(context.Background(), src, dest, "broken", container.ModeStandard)
	if err == nil {
		t.Fatal("expected build to fail on an unreadable file")
	}
	if _, statErr := os.Stat(filepath.Join(dest, "broken.m2h")); !os.IsNotExist(statErr) {
		t.Error("header stream written for a failed build")
	}
	if _, statErr := os.Stat(filepath.Join(dest, "broken.m2d")); !os.IsNotExist(statErr) {
		t.Error("data stream written for a failed build")
	}
}

func TestBuildArchiveExclude(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"keep/a.png":    "a",
		"skip/b.png":    "b",
		"keep/c.tmp":    "c",
		"keep/d/e.zlib": "e",
	})

	stats := buildTestArchive(t, src, t.TempDir(), "filtered", BuilderOptions{
		Exclude: []string{"skip/**", "**/*.tmp"},
	})
	entries := loadTestArchive(t, stats).Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].ID != 1 || filepath.ToSlash(entries[0].Name) != "keep/a.png" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].ID != 2 || filepath.ToSlash(entries[1].Name) != "keep/d/e.zlib" {
		t.Errorf("entries[1] = %+v", entries[1])
	}

	_, err := NewBuilder(BuilderOptions{Exclude: []string{"[unclosed"}}).BuildArchive(context.Background(), src, t.TempDir(), "x", container.ModeStandard)
	if err == nil {
		t.Error("expected error for an invalid exclude pattern")
	}
}

func TestBuildArchiveProgressAndDefaultCompression(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "a", "b.bin": "b", "c.png": "c"})

	var calls int
	var last, lastTotal int64
	stats := buildTestArchive(t, src, t.TempDir(), "progress", BuilderOptions{
		DefaultCompression: Usm,
		Progress: func(current, total int64) {
			calls++
			last, lastTotal = current, total
		},
	})
	if calls != 3 || last != 3 || lastTotal != 3 {
		t.Errorf("progress calls=%d last=%d total=%d, want 3/3/3", calls, last, lastTotal)
	}

	for _, e := range loadTestArchive(t, stats).Entries() {
		want := Usm
		if e.Name == "c.png" {
			want = Png
		}
		if e.Compression != want {
			t.Errorf("%s compression = %v, want %v", e.Name, e.Compression, want)
		}
	}
}

func TestBuildArchiveCanceled(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(BuilderOptions{}).BuildArchive(ctx, src, t.TempDir(), "c", container.ModeStandard)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("BuildArchive() error = %v, want context.Canceled", err)
	}
}

func TestBuildArchiveSymlinkedSource(t *testing.T) {
	target := t.TempDir()
	writeFiles(t, target, map[string]string{
		"a/icon.png":  "0123456789",
		"b/data.zlib": "01234567890123456789",
	})
	link := filepath.Join(t.TempDir(), "src")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	stats := buildTestArchive(t, link, t.TempDir(), "archive", BuilderOptions{})
	if stats.Files != 2 || stats.Bytes != 30 {
		t.Errorf("stats = %+v, want 2 files / 30 bytes", stats)
	}
	entries := loadTestArchive(t, stats).Entries()
	if len(entries) != 2 || entries[0].Name != filepath.Join("a", "icon.png") {
		t.Errorf("entries = %+v", entries)
	}
}
