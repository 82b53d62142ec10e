package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/store"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// staleAfter flags reference documents that missed more than one daily refresh
const staleAfter = 48 * time.Hour

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure pjskrec can operate correctly.

This command checks:
- SQLite version
- Database accessibility and integrity
- Reference documents (present, parseable, fresh)
- Data directory permissions and disk space
- Refresh schedule configuration

Use this command to troubleshoot issues before serving.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== pjskrec Doctor - System Diagnostics ===")
	util.InfoLog("")

	dataDir := GetConfigString("data_dir", defaultDataDir)

	results := []checkResult{}
	results = append(results, checkSQLite())
	results = append(results, checkDatabase(viper.GetString("db")))
	results = append(results, checkDataDirectory(dataDir))
	results = append(results, checkDocuments(refdata.NewLoader(dataDir), documents(), time.Now())...)
	results = append(results, checkDiskSpace(dataDir, "data"))
	results = append(results, checkSchedule())

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before serving.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! Ready to serve.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{ReadOnly: true})
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	count, err := db.CountRecords(context.Background())
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot read records: %v", err),
		}
	}

	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s (%s, %d records)", dbPath, humanize.Bytes(uint64(info.Size())), count),
	}
}

// checkDataDirectory verifies the reference document directory is writable
func checkDataDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Data directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Data directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Data directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Data directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	// Refresh writes temp files next to the documents
	f, err := os.CreateTemp(path, ".pjskrec_write_test")
	if err != nil {
		return checkResult{
			name:    "Data directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(f.Name())

	return checkResult{
		name:    "Data directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDocuments verifies each reference document is present, parses and is
// fresh. The ratings document is optional.
func checkDocuments(loader *refdata.Loader, docs []refdata.Document, now time.Time) []checkResult {
	results := make([]checkResult, 0, len(docs))

	for _, doc := range docs {
		name := "Document " + doc.File
		optional := doc.File == refdata.RatingsFile

		info, err := os.Stat(filepath.Join(loader.Dir(), doc.File))
		if err != nil {
			results = append(results, checkResult{
				name:    name,
				error:   !optional,
				warning: optional,
				message: "missing (run pjskrec refresh)",
			})
			continue
		}

		entries, err := countEntries(loader, doc.File)
		if err != nil {
			results = append(results, checkResult{
				name:    name,
				error:   true,
				message: err.Error(),
			})
			continue
		}

		r := checkResult{
			name: name,
			message: fmt.Sprintf("%d entries, %s, updated %s",
				entries, humanize.Bytes(uint64(info.Size())), humanize.RelTime(info.ModTime(), now, "ago", "from now")),
		}
		if now.Sub(info.ModTime()) > staleAfter {
			r.warning = true
			r.message += " (stale)"
		}
		results = append(results, r)
	}

	return results
}

func countEntries(loader *refdata.Loader, file string) (int, error) {
	switch file {
	case refdata.CatalogFile:
		songs, err := loader.LoadCatalog()
		return len(songs), err
	case refdata.ChartsFile:
		charts, err := loader.LoadCharts()
		return len(charts), err
	case refdata.RatingsFile:
		ratings, err := loader.LoadRatings()
		return len(ratings), err
	}
	return 0, fmt.Errorf("unknown document %s", file)
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)

	// Warn below 100 MB
	warning := availBytes < 100*1024*1024
	warningMsg := ""
	if warning {
		warningMsg = " (low space!)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.Bytes(availBytes), warningMsg),
	}
}

// checkSchedule validates the refresh schedule settings
func checkSchedule() checkResult {
	opts, err := scheduleOptions()
	if err != nil {
		return checkResult{
			name:    "Refresh schedule",
			error:   true,
			message: err.Error(),
		}
	}

	return checkResult{
		name:    "Refresh schedule",
		message: fmt.Sprintf("daily at %02d:%02d (+ up to %v), next around %s",
			opts.Hour, opts.Minute, opts.Jitter, refdata.NextRun(time.Now(), opts).Format(time.DateTime)),
	}
}
