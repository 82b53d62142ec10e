package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/pjsk-record/internal/record"
	"github.com/franz/pjsk-record/internal/store"
	"github.com/franz/pjsk-record/internal/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var recentCmd = &cobra.Command{
	Use:   "recent <user>",
	Short: "List a user's most recent records",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecent,
}

func init() {
	rootCmd.AddCommand(recentCmd)
}

func runRecent(cmd *cobra.Command, args []string) error {
	db, err := store.OpenWithOptions(viper.GetString("db"), &store.OpenOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	svc := record.NewService(&record.Config{Store: db})
	records, err := svc.Recent(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printRecent(os.Stdout, records)
	return nil
}

func printRecent(out io.Writer, records []*store.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No records.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSONG\tDIFFICULTY\tPERFECT\tGREAT\tGOOD\tBAD\tMISS\t")
	for _, r := range records {
		t := time.Unix(r.Time, 0)
		fmt.Fprintf(w, "%s (%s)\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t\n",
			t.UTC().Format(web.RecordTimeLayout), humanize.Time(t),
			r.SongName, r.Difficulty, r.Perfect, r.Great, r.Good, r.Bad, r.Miss)
	}
	w.Flush()
}
