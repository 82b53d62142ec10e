package refdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/franz/pjsk-record/internal/util"
)

// Loader parses the local reference documents. Parsed contents are cached
// per file and reused until the file's modification time or size changes,
// which a refresh always causes because it renames a new file into place.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]cachedDoc
}

type docVersion struct {
	modTime int64 // UnixNano
	size    int64
}

type cachedDoc struct {
	version docVersion
	value   any
}

// NewLoader creates a loader reading documents from dir
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: make(map[string]cachedDoc),
	}
}

// Dir returns the data directory
func (l *Loader) Dir() string {
	return l.dir
}

// LoadCatalog parses musics.json
func (l *Loader) LoadCatalog() ([]Song, error) {
	return load[Song](l, CatalogFile)
}

// LoadCharts parses musicDifficulties.json
func (l *Loader) LoadCharts() ([]Chart, error) {
	return load[Chart](l, ChartsFile)
}

// LoadRatings parses musicRatings.json
func (l *Loader) LoadRatings() ([]Rating, error) {
	return load[Rating](l, RatingsFile)
}

func load[T any](l *Loader, file string) ([]T, error) {
	path := filepath.Join(l.dir, file)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", file, err)
	}
	version := docVersion{modTime: info.ModTime().UnixNano(), size: info.Size()}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[file]; ok && cached.version == version {
		if v, ok := cached.value.([]T); ok {
			return v, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w: %v", file, util.ErrMalformedResponse, err)
	}

	util.DebugLog("Loaded %s: %d entries", file, len(items))
	l.cache[file] = cachedDoc{version: version, value: items}

	return items, nil
}
