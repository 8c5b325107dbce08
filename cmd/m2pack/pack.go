package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/flaneur2020/m2pack/m2pack"
	"github.com/flaneur2020/m2pack/m2pack/container"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func (a *app) newPackCmd() *cobra.Command {
	var (
		exclude     []string
		compression string
		noProgress  bool
	)

	cmd := &cobra.Command{
		Use:   "pack <SOURCE_DIR> <DEST_DIR> <NAME>",
		Short: "Pack every file under SOURCE_DIR into DEST_DIR/NAME.m2h and NAME.m2d",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceDir, destDir, name := args[0], args[1], args[2]

			mode, err := container.ParseMode(a.v.GetString("mode"))
			if err != nil {
				return err
			}
			def, err := container.ParseCompression(compression)
			if err != nil {
				return err
			}

			opts := m2pack.BuilderOptions{
				Workers:            a.v.GetInt("workers"),
				Exclude:            exclude,
				DefaultCompression: def,
				ContainerOptions:   a.containerOptions(),
			}

			var bar *progressbar.ProgressBar
			if !noProgress {
				opts.Progress = func(current, total int64) {
					if bar == nil {
						bar = progressbar.NewOptions64(total,
							progressbar.OptionSetDescription(fmt.Sprintf("Packing %s", name)),
							progressbar.OptionSetWriter(os.Stderr),
							progressbar.OptionShowCount(),
							progressbar.OptionClearOnFinish(),
						)
					}
					bar.Set64(current)
				}
			}

			stats, err := m2pack.NewBuilder(opts).BuildArchive(cmd.Context(), sourceDir, destDir, name, mode)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			a.printf("Packed %d files (%s) into %s [%s]\n",
				stats.Files, humanize.IBytes(uint64(stats.Bytes)), stats.HeaderPath, mode)
			return nil
		},
	}

	cmd.Flags().String("mode", container.ModeStandard.String(), "Archive mode: standard, sealed-header, sealed-data, sealed")
	cmd.Flags().Int("workers", 0, "Concurrent file insertions (default: number of CPUs)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Exclude files matching a doublestar pattern (repeatable)")
	cmd.Flags().StringVar(&compression, "default-compression", container.CompressionZlib.String(), "Compression for unclassified extensions: Zlib, Png, Usm")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar (progress is enabled by default)")
	return cmd
}
