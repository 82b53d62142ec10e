// Package refdata keeps local copies of the game's master-data documents
// (song catalog, chart metadata and rating adjustments) and parses them.
package refdata

const (
	// MasterDBBaseURL hosts musics.json and musicDifficulties.json
	MasterDBBaseURL = "https://raw.githubusercontent.com/Sekai-World/sekai-master-db-diff/main/"

	// RatingsURL hosts per-chart rating adjustments
	RatingsURL = "https://raw.githubusercontent.com/watagashi-uni/Unibot/main/masterdata/realtime/musicDifficulties.json"
)

// Local file names of the three documents
const (
	CatalogFile = "musics.json"
	ChartsFile  = "musicDifficulties.json"
	RatingsFile = "musicRatings.json"
)

// Difficulties lists every chart difficulty label in ascending order
var Difficulties = []string{"easy", "normal", "hard", "expert", "master", "append"}

// ValidDifficulty reports whether label is a known difficulty
func ValidDifficulty(label string) bool {
	for _, d := range Difficulties {
		if d == label {
			return true
		}
	}
	return false
}

// Document is one remotely sourced reference file
type Document struct {
	Name string // Config key, e.g. "musics"
	URL  string
	File string // File name inside the data directory
}

// DefaultDocuments returns the upstream sources for the three documents
func DefaultDocuments() []Document {
	return []Document{
		{Name: "musics", URL: MasterDBBaseURL + CatalogFile, File: CatalogFile},
		{Name: "musicDifficulties", URL: MasterDBBaseURL + ChartsFile, File: ChartsFile},
		{Name: "musicRatings", URL: RatingsURL, File: RatingsFile},
	}
}

// Song is a catalog entry
type Song struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Chart is the difficulty-specific arrangement of a song
type Chart struct {
	MusicID        int    `json:"musicId"`
	Difficulty     string `json:"musicDifficulty"`
	PlayLevel      int    `json:"playLevel"`
	TotalNoteCount int    `json:"totalNoteCount"`
}

// Rating carries the optional level adjustments for a chart. Either pointer
// may be nil when the upstream entry omits the field.
type Rating struct {
	MusicID           int      `json:"musicId"`
	Difficulty        string   `json:"musicDifficulty"`
	FullComboAdjust   *float64 `json:"fullComboAdjust"`
	FullPerfectAdjust *float64 `json:"fullPerfectAdjust"`
}

// HasAdjustments reports whether both adjustment fields are present
func (r Rating) HasAdjustments() bool {
	return r.FullComboAdjust != nil && r.FullPerfectAdjust != nil
}
