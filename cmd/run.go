package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one harvest pass",
		Long: `Fetches every configured channel and site, probes the discovered
candidates, merges the classified URLs into the saved state, and writes the
text report. The report is sent to Telegram when a bot token and chat id are
configured.`,
		RunE: runHarvest,
	}
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := appInstance.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}
	fields := []zap.Field{
		zap.String("run_id", res.RunID.String()),
		zap.String("candidates", humanize.Comma(int64(len(res.Candidates)))),
		zap.Int64("classified", res.Stats.Classified),
		zap.Int64("failed", res.Stats.Failed),
		zap.String("report", res.ReportURI),
	}
	for _, kind := range crawler.Kinds {
		fields = append(fields, zap.Int(string(kind), res.State.Len(kind)))
	}
	appInstance.Logger().Info("harvest finished", fields...)
	return nil
}
