package m2pack

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"b/data.zlib":     "20 bytes of payload!",
		"a/icon.png":      "10 bytes!!",
		"top.txt":         "top",
		"a/deep/er/x.usm": "usm",
	})
	if err := os.MkdirAll(filepath.Join(root, "empty", "dir"), 0755); err != nil {
		t.Fatal(err)
	}

	for _, scanRoot := range []string{root, root + string(filepath.Separator)} {
		files, err := ScanFiles(scanRoot)
		if err != nil {
			t.Fatalf("ScanFiles(%q) error = %v", scanRoot, err)
		}

		var rels []string
		for _, f := range files {
			if strings.HasPrefix(f.RelativePath, string(filepath.Separator)) {
				t.Errorf("relative path %q starts with a separator", f.RelativePath)
			}
			if f.FullPath != filepath.Join(root, f.RelativePath) {
				t.Errorf("FullPath %q does not match RelativePath %q", f.FullPath, f.RelativePath)
			}
			rels = append(rels, filepath.ToSlash(f.RelativePath))
		}
		want := "a/deep/er/x.usm,a/icon.png,b/data.zlib,top.txt"
		if strings.Join(rels, ",") != want {
			t.Errorf("ScanFiles(%q) = %v, want %s", scanRoot, rels, want)
		}
	}
}

func TestScanFilesMissingRoot(t *testing.T) {
	if _, err := ScanFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestResolveDataFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"pack.m2h":   "h",
		"pack.m2d":   "d",
		"orphan.m2h": "h",
	})

	dataPath, err := ResolveDataFile(filepath.Join(root, "pack.m2h"))
	if err != nil {
		t.Fatalf("ResolveDataFile() error = %v", err)
	}
	if dataPath != filepath.Join(root, "pack.m2d") {
		t.Errorf("ResolveDataFile() = %q", dataPath)
	}

	_, err = ResolveDataFile(filepath.Join(root, "orphan.m2h"))
	if !errors.Is(err, m2errors.ErrMissingPairedFile) {
		t.Errorf("ResolveDataFile(orphan) error = %v, want ErrMissingPairedFile", err)
	}
}

func TestFindArchivePairs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.m2h":         "h",
		"a.m2d":         "d",
		"x/y/b.m2h":     "h",
		"x/y/b.m2d":     "d",
		"x/notes.txt":   "",
		"x/y/only.m2d":  "d",
		"z/missing.m2h": "h",
		"zz/after.m2h":  "h",
		"zz/after.m2d":  "d",
	})

	var pairs []HeaderDataPair
	var errs []error
	for pair, err := range FindArchivePairs(root) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pairs = append(pairs, pair)
	}

	if len(pairs) != 3 {
		t.Fatalf("found %d pairs, want 3: %+v", len(pairs), pairs)
	}
	wantBases := []string{"a", "b", "after"}
	for i, pair := range pairs {
		if pair.BaseName() != wantBases[i] {
			t.Errorf("pairs[%d].BaseName() = %q, want %q", i, pair.BaseName(), wantBases[i])
		}
		if filepath.Ext(pair.DataPath) != ".m2d" {
			t.Errorf("pairs[%d].DataPath = %q", i, pair.DataPath)
		}
	}
	if len(errs) != 1 || !errors.Is(errs[0], m2errors.ErrMissingPairedFile) {
		t.Errorf("errors = %v, want one ErrMissingPairedFile", errs)
	}
}

func TestFindArchivePairsStopsEarly(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a/missing.m2h": "h",
		"b/ok.m2h":      "h",
		"b/ok.m2d":      "d",
	})

	seen := 0
	for _, err := range FindArchivePairs(root) {
		seen++
		if err != nil {
			break
		}
	}
	if seen != 1 {
		t.Errorf("iterated %d elements after fail-fast break, want 1", seen)
	}
}

func TestScanFilesSymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	writeFiles(t, target, map[string]string{
		"a/icon.png": "10 bytes!!",
		"top.txt":    "top",
	})
	// A symlinked directory inside the tree is skipped.
	if err := os.Symlink(filepath.Join(target, "a"), filepath.Join(target, "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	files, err := ScanFiles(link)
	if err != nil {
		t.Fatalf("ScanFiles() error = %v", err)
	}
	var rels []string
	for _, f := range files {
		if f.FullPath != filepath.Join(link, f.RelativePath) {
			t.Errorf("FullPath %q is not under %q", f.FullPath, link)
		}
		rels = append(rels, filepath.ToSlash(f.RelativePath))
	}
	if got := strings.Join(rels, ","); got != "a/icon.png,top.txt" {
		t.Errorf("ScanFiles() = %s, want a/icon.png,top.txt", got)
	}
}

func TestFindArchivePairsSymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	writeFiles(t, target, map[string]string{
		"x/pack.m2h": "h",
		"x/pack.m2d": "d",
	})
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	var pairs []HeaderDataPair
	for pair, err := range FindArchivePairs(link) {
		if err != nil {
			t.Fatalf("FindArchivePairs() error = %v", err)
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) != 1 || pairs[0].HeaderPath != filepath.Join(link, "x", "pack.m2h") {
		t.Errorf("pairs = %+v, want x/pack.m2h under the link", pairs)
	}
}
