package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the reference documents now",
	Long: `Download the song catalog, chart and rating documents into the data
directory. Each document replaces its local copy atomically; a document that
cannot be downloaded keeps its previous copy.`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	dataDir := GetConfigString("data_dir", defaultDataDir)
	util.InfoLog("=== Refreshing reference data into %s ===", dataDir)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	fetcher := refdata.NewFetcher(fetcherConfig(dataDir, util.NewByteProgress))
	err := fetcher.Refresh(ctx)

	for _, doc := range documents() {
		path := filepath.Join(dataDir, doc.File)
		info, statErr := os.Stat(path)
		if statErr != nil {
			util.WarnLog("  %-24s missing", doc.File)
			continue
		}
		util.InfoLog("  %-24s %8s  updated %s", doc.File,
			humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	}

	if err != nil {
		return fmt.Errorf("refresh incomplete: %w", err)
	}
	util.SuccessLog("Reference data up to date")
	return nil
}
