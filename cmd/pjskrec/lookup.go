package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/pjsk-record/internal/alias"
	"github.com/franz/pjsk-record/internal/record"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/song"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <song id | alias> [difficulty]",
	Short: "Show song info from the local reference documents",
	Long: `Show what the local reference documents know about a song.

The song can be given by id or by any name or alias the lookup service
understands. With a difficulty, the chart's play level, note count and
rating adjustments are shown; without one, every difficulty of the song
is listed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	svc := record.NewService(&record.Config{
		Songs:   song.NewLookup(refdata.NewLoader(GetConfigString("data_dir", defaultDataDir))),
		Aliases: alias.NewClient(aliasConfig()),
	})

	songID, err := strconv.Atoi(args[0])
	if err != nil {
		match, err := svc.ResolveAlias(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", args[0], err)
		}
		util.InfoLog("'%s' -> %s (match %.2f)", args[0], match.Title, match.Score)
		songID = match.MusicID
	}

	difficulty := ""
	if len(args) == 2 {
		difficulty = strings.ToLower(args[1])
	}

	info, err := svc.SongInfo(songID, difficulty)
	if err != nil {
		return err
	}

	fmt.Print(formatInfo(info))
	return nil
}

func formatInfo(info *song.Info) string {
	var sb strings.Builder

	title := info.Title
	if title == "" {
		title = "(not in catalog)"
	}
	fmt.Fprintf(&sb, "%d  %s\n", info.MusicID, title)

	if info.Difficulty == "" {
		for _, d := range refdata.Difficulties {
			if level, ok := info.Difficulties[d]; ok {
				fmt.Fprintf(&sb, "  %-8s %2d\n", d, level)
			}
		}
		return sb.String()
	}

	if !info.HasChart {
		fmt.Fprintf(&sb, "  %s: no chart\n", info.Difficulty)
		return sb.String()
	}

	fmt.Fprintf(&sb, "  %-8s level %d, %d notes\n", info.Difficulty, info.PlayLevel, info.TotalNoteCount)
	if info.HasAdjustments() {
		fmt.Fprintf(&sb, "  adjust   FC %+.1f, AP %+.1f\n", *info.FullComboAdjust, *info.FullPerfectAdjust)
	}
	return sb.String()
}
