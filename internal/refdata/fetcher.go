package refdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
)

// DefaultTimeout bounds a single document download
const DefaultTimeout = 10 * time.Second

// ProgressFunc returns a writer that observes the bytes of one download.
// total is -1 when the server sends no Content-Length.
type ProgressFunc func(description string, total int64) io.Writer

// Fetcher downloads the reference documents into a data directory
type Fetcher struct {
	httpClient *http.Client
	dir        string
	docs       []Document
	userAgent  string
	progress   ProgressFunc
}

// FetcherConfig holds fetcher configuration
type FetcherConfig struct {
	Dir       string
	Documents []Document // Defaults to DefaultDocuments()
	Timeout   time.Duration
	UserAgent string
	Progress  ProgressFunc // Optional
}

// NewFetcher creates a new Fetcher
func NewFetcher(cfg *FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	docs := cfg.Documents
	if len(docs) == 0 {
		docs = DefaultDocuments()
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dir:        cfg.Dir,
		docs:       docs,
		userAgent:  cfg.UserAgent,
		progress:   cfg.Progress,
	}
}

// Refresh downloads every document concurrently and replaces the local copies.
// A document that cannot be fetched is skipped with a warning and its stale
// copy stays in use; the failures are returned combined. Refresh is safe to
// repeat.
func (f *Fetcher) Refresh(ctx context.Context) error {
	var (
		wg   conc.WaitGroup
		mu   sync.Mutex
		errs error
	)

	for _, doc := range f.docs {
		wg.Go(func() {
			if err := f.fetch(ctx, doc); err != nil {
				util.WarnLog("Refresh of %s skipped, keeping local copy: %v", doc.File, err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	return errs
}

// fetch streams one document to disk through an atomic rename
func (f *Fetcher) fetch(ctx context.Context, doc Document) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", doc.File, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %v", doc.URL, util.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%d when GET %s: %w", resp.StatusCode, doc.URL, util.ErrUpstreamUnavailable)
	}

	path := filepath.Join(f.dir, doc.File)
	n, err := util.WriteFileAtomic(path, func(w io.Writer) (int64, error) {
		if f.progress != nil {
			w = io.MultiWriter(w, f.progress(doc.File, resp.ContentLength))
		}
		return io.Copy(w, resp.Body)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", doc.File, err)
	}

	util.InfoLog("Refreshed %s (%s in %v)", doc.File, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return nil
}
