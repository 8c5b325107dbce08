package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/flaneur2020/m2pack/m2pack"
	"github.com/flaneur2020/m2pack/m2pack/container"
	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// openArchive loads the archive named by a stem, header or data path.
func (a *app) openArchive(ctx context.Context, arg string) (*container.Archive, error) {
	kind, headerPath, err := m2pack.ResolveSource(arg)
	if err != nil {
		return nil, err
	}
	if kind != m2pack.SourceSingleArchive {
		return nil, fmt.Errorf("%s is a directory, expected an archive", arg)
	}
	dataPath, err := m2pack.ResolveDataFile(headerPath)
	if err != nil {
		return nil, err
	}
	return container.Load(ctx, headerPath, dataPath, a.containerOptions()...)
}

func (a *app) newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <ARCHIVE> [ID]...",
		Short: "List the entries of an archive, or only the given entry ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			entries, err := selectEntries(archive, args[1:])
			if err != nil {
				return err
			}

			a.printf("Entries in %s (%s):\n", args[0], archive.Mode())
			for _, e := range entries {
				a.printf("%06d %-5s %10s %s\n", e.ID, e.Compression, humanize.IBytes(uint64(e.Size)), e.Name)
			}
			return nil
		},
	}
}

// selectEntries returns every entry when ids is empty, otherwise the named ones.
func selectEntries(archive *container.Archive, ids []string) ([]container.Entry, error) {
	if len(ids) == 0 {
		return archive.Entries(), nil
	}
	entries := make([]container.Entry, 0, len(ids))
	for _, arg := range ids {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid entry id %q", arg)
		}
		e, ok := archive.Entry(uint32(id))
		if !ok {
			return nil, m2errors.ErrEntryNotFound.WithDetail("id", id)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (a *app) newUnpackCmd() *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "unpack <ARCHIVE> <DEST_DIR>",
		Short: "Extract every entry of an archive, verifying digests",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archive, err := a.openArchive(ctx, args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			entries := archive.Entries()
			var total int64
			for _, e := range entries {
				total += e.Size
			}

			var bar *progressbar.ProgressBar
			if !noProgress && total > 0 {
				bar = progressbar.DefaultBytes(total, fmt.Sprintf("Unpacking %d files", len(entries)))
			}

			for _, e := range entries {
				target, err := entryTarget(args[1], e.Name)
				if err != nil {
					return err
				}
				if err := extractEntry(ctx, archive, e, target, bar); err != nil {
					return err
				}
			}
			if bar != nil {
				bar.Finish()
			}

			a.printf("Unpacked %d files (%s) into %s\n", len(entries), humanize.IBytes(uint64(total)), args[1])
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar (progress is enabled by default)")
	return cmd
}

// entryTarget maps an entry name onto destDir, refusing names that escape it.
func entryTarget(destDir, name string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if strings.TrimSpace(rel) == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("refusing to unpack entry %q", name)
	}
	return filepath.Join(destDir, rel), nil
}

func extractEntry(ctx context.Context, archive *container.Archive, e container.Entry, target string, bar *progressbar.ProgressBar) error {
	rc, err := archive.Open(ctx, e.ID)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	var w io.Writer = f
	if bar != nil {
		w = io.MultiWriter(f, bar)
	}
	if _, err := io.Copy(w, rc); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return f.Close()
}

func (a *app) newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <ARCHIVE>",
		Short: "Verify the data stream and every entry digest of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			if err := archive.Verify(cmd.Context()); err != nil {
				return err
			}
			a.printf("OK: %d entries verified in %s\n", archive.EntryCount(), args[0])
			return nil
		},
	}
}
