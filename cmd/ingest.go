package main

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LivingRiskyCo/dsx-tracker/internal/ingest"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-url> [file-or-url...]",
	Short: "Load source records into the store",
	Long:  "Reads provider exports (json, csv, or xlsx; local paths or http/ftp URLs) and saves records keyed by content hash, so re-ingesting the same file is a no-op.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var (
			mu      sync.Mutex
			records []model.SourceRecord
		)
		g, gctx := errgroup.WithContext(ctx)
		for _, source := range args {
			g.Go(func() error {
				parsed, err := ingest.Load(gctx, source)
				if err != nil {
					return eris.Wrapf(err, "load %s", source)
				}
				mu.Lock()
				records = append(records, parsed...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		inserted, err := st.SaveSourceRecords(ctx, records)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.Int("sources", len(args)),
			zap.Int("records", len(records)),
			zap.Int("inserted", inserted),
			zap.Int("duplicates", len(records)-inserted),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
