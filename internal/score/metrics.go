// Package score derives accuracy and play rating from an attempt's hit counts.
package score

import (
	"fmt"
	"math"

	"github.com/franz/pjsk-record/internal/song"
	"github.com/franz/pjsk-record/internal/util"
)

// Weights per hit tier, relative to a perfect (0)
const (
	greatWeight = 1
	goodWeight  = 2
	badWeight   = 3
	missWeight  = 3

	maxWeight = 3
)

// Counts holds the non-perfect hit tiers of an attempt
type Counts struct {
	Great int
	Good  int
	Bad   int
	Miss  int
}

// Total returns the number of non-perfect notes
func (c Counts) Total() int {
	return c.Great + c.Good + c.Bad + c.Miss
}

// FullCombo reports an attempt with no good, bad or miss hits
func (c Counts) FullCombo() bool {
	return c.Good == 0 && c.Bad == 0 && c.Miss == 0
}

// FullPerfect reports an attempt with only perfect hits
func (c Counts) FullPerfect() bool {
	return c.FullCombo() && c.Great == 0
}

// Weighted returns the accuracy penalty of the attempt
func (c Counts) Weighted() int {
	return c.Great*greatWeight + c.Good*goodWeight + c.Bad*badWeight + c.Miss*missWeight
}

func checkChart(info *song.Info) error {
	if info == nil || !info.HasChart {
		return fmt.Errorf("no chart data: %w", util.ErrPreconditionMissing)
	}
	if info.TotalNoteCount <= 0 {
		return fmt.Errorf("chart %d/%s has no notes: %w", info.MusicID, info.Difficulty, util.ErrPreconditionMissing)
	}
	return nil
}

// Accuracy returns 1 - weighted / (3 * totalNoteCount)
func Accuracy(info *song.Info, c Counts) (float64, error) {
	if err := checkChart(info); err != nil {
		return 0, err
	}
	return 1 - float64(c.Weighted())/float64(info.TotalNoteCount*maxWeight), nil
}

// AdjustedLevel returns the chart's play level with the rating adjustment
// the attempt qualifies for.
func AdjustedLevel(info *song.Info, c Counts) (float64, error) {
	if err := checkChart(info); err != nil {
		return 0, err
	}

	level := float64(info.PlayLevel)
	if !info.HasAdjustments() {
		return level, nil
	}

	switch {
	case c.FullPerfect():
		level += *info.FullPerfectAdjust
	case c.FullCombo():
		level += math.Min(*info.FullPerfectAdjust, *info.FullComboAdjust)
	}
	return level, nil
}

// PlayRating returns the adjusted level scaled by accuracy
func PlayRating(info *song.Info, c Counts) (float64, error) {
	level, err := AdjustedLevel(info, c)
	if err != nil {
		return 0, err
	}
	acc, err := Accuracy(info, c)
	if err != nil {
		return 0, err
	}
	return level * acc, nil
}
