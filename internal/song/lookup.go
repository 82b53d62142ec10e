// Package song joins the reference documents into one info record per song
// or chart.
package song

import (
	"errors"
	"fmt"
	"os"

	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/util"
)

// Source provides the parsed reference documents
type Source interface {
	LoadCatalog() ([]refdata.Song, error)
	LoadCharts() ([]refdata.Chart, error)
	LoadRatings() ([]refdata.Rating, error)
}

// Info is the consolidated view of a song, or of one of its charts when a
// difficulty was requested. Fields that the documents don't provide are left
// at their zero value; HasChart and HasAdjustments tell absent from zero.
type Info struct {
	MusicID int
	Title   string

	// Set when no difficulty was requested: label -> play level
	Difficulties map[string]int

	// Set when a difficulty was requested
	Difficulty        string
	HasChart          bool
	PlayLevel         int
	TotalNoteCount    int
	FullComboAdjust   *float64
	FullPerfectAdjust *float64
}

// HasAdjustments reports whether both rating adjustments are known
func (i *Info) HasAdjustments() bool {
	return i.FullComboAdjust != nil && i.FullPerfectAdjust != nil
}

// Lookup answers song info queries from a Source
type Lookup struct {
	src Source
}

// NewLookup creates a new Lookup
func NewLookup(src Source) *Lookup {
	return &Lookup{src: src}
}

// SongInfo returns info for songID. With an empty difficulty it lists every
// difficulty present for the song; otherwise it returns the chart's play
// level and note count plus any rating adjustments. A song or chart missing
// from the documents is not an error: the corresponding fields stay empty.
func (l *Lookup) SongInfo(songID int, difficulty string) (*Info, error) {
	info := &Info{MusicID: songID}

	songs, err := l.src.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	for _, s := range songs {
		if s.ID == songID {
			info.Title = s.Title
			break
		}
	}

	charts, err := l.src.LoadCharts()
	if err != nil {
		return nil, fmt.Errorf("failed to load charts: %w", err)
	}

	if difficulty == "" {
		// Full scan: the document is not guaranteed to group a song's charts
		info.Difficulties = make(map[string]int)
		for _, c := range charts {
			if c.MusicID == songID {
				info.Difficulties[c.Difficulty] = c.PlayLevel
			}
		}
		return info, nil
	}

	info.Difficulty = difficulty
	for _, c := range charts {
		if c.MusicID == songID && c.Difficulty == difficulty {
			info.HasChart = true
			info.PlayLevel = c.PlayLevel
			info.TotalNoteCount = c.TotalNoteCount
			break
		}
	}

	ratings, err := l.src.LoadRatings()
	if errors.Is(err, os.ErrNotExist) {
		// The ratings document is optional
		util.DebugLog("No ratings document, skipping adjustments for %d/%s", songID, difficulty)
		return info, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	for _, r := range ratings {
		if r.MusicID == songID && r.Difficulty == difficulty && r.HasAdjustments() {
			info.FullComboAdjust = r.FullComboAdjust
			info.FullPerfectAdjust = r.FullPerfectAdjust
			break
		}
	}

	return info, nil
}
