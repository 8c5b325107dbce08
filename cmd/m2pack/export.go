package main

import (
	"github.com/flaneur2020/m2pack/m2pack"
	"github.com/flaneur2020/m2pack/m2pack/logger"
	"github.com/spf13/cobra"
)

func (a *app) newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <SOURCE> <DEST_DIR>",
		Short: "Export entry reports and summaries for a directory of archives or a single archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := &m2pack.BatchExporter{
				Concurrency:      a.v.GetInt("concurrency"),
				ContainerOptions: a.containerOptions(),
				OnArchive: func(pair m2pack.HeaderDataPair, s *m2pack.ExportStats) {
					logger.Info("Exported %s: %d entries, %d skipped", pair.HeaderPath, s.Entries, s.Skipped)
				},
			}

			stats, err := b.Run(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			a.printf("Exported %d archive(s), %d entries", stats.Archives, stats.Entries)
			if stats.Skipped > 0 {
				a.printf(" (%d skipped)", stats.Skipped)
			}
			if stats.Warnings > 0 {
				a.printf(" (%d warnings)", stats.Warnings)
			}
			a.printf("\n")
			return nil
		},
	}

	cmd.Flags().Int("concurrency", 1, "Archives exported at once")
	return cmd
}
