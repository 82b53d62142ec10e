// Package record ties the song lookup, the record store and the derived
// metrics together into the operations the web layer and the CLI expose.
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/franz/pjsk-record/internal/alias"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/report"
	"github.com/franz/pjsk-record/internal/score"
	"github.com/franz/pjsk-record/internal/song"
	"github.com/franz/pjsk-record/internal/store"
	"github.com/franz/pjsk-record/internal/util"
)

// Store is the persistence the service needs
type Store interface {
	InsertRecord(ctx context.Context, r *store.Record) error
	GetRecord(ctx context.Context, key store.Key) (*store.Record, error)
	CompareAndSwapRecord(ctx context.Context, expected, r *store.Record) (bool, error)
	RecentRecords(ctx context.Context, user string, limit int) ([]*store.Record, error)
}

// SongLookup answers song info queries
type SongLookup interface {
	SongInfo(songID int, difficulty string) (*song.Info, error)
}

// AliasResolver translates free-text names into songs
type AliasResolver interface {
	Resolve(ctx context.Context, alias string) (*alias.Match, error)
}

// Service implements submission, amendment and browsing of score records
type Service struct {
	store   Store
	songs   SongLookup
	aliases AliasResolver
	events  *report.EventLogger
	now     func() time.Time
}

// Config holds service dependencies. Now defaults to time.Now; Events is
// optional.
type Config struct {
	Store   Store
	Songs   SongLookup
	Aliases AliasResolver
	Events  *report.EventLogger
	Now     func() time.Time
}

// NewService creates a new Service
func NewService(cfg *Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   cfg.Store,
		songs:   cfg.Songs,
		aliases: cfg.Aliases,
		events:  cfg.Events,
		now:     now,
	}
}

// Submission is a raw attempt as entered by a user. Perfect is not part of
// it: it is derived from the chart's note count.
type Submission struct {
	SongID     int
	Difficulty string
	User       string
	Counts     score.Counts
}

// Result is a stored record together with its song info and metrics.
// HasMetrics is false when the chart data needed for the metrics is gone.
type Result struct {
	Record     *store.Record
	Info       *song.Info
	HasMetrics bool
	Accuracy   float64
	Rating     float64
}

func validateCounts(c score.Counts) error {
	if c.Great < 0 || c.Good < 0 || c.Bad < 0 || c.Miss < 0 {
		return fmt.Errorf("hit counts must be non-negative: %w", util.ErrInvalidInput)
	}
	return nil
}

func validateSubmission(sub *Submission, requireUser bool) error {
	if !refdata.ValidDifficulty(sub.Difficulty) {
		return fmt.Errorf("unknown difficulty %q: %w", sub.Difficulty, util.ErrInvalidInput)
	}
	if requireUser && strings.TrimSpace(sub.User) == "" {
		return fmt.Errorf("user cannot be empty: %w", util.ErrInvalidInput)
	}
	return validateCounts(sub.Counts)
}

// chart fetches the chart for (songID, difficulty) and fails when it is absent
func (s *Service) chart(songID int, difficulty string) (*song.Info, error) {
	info, err := s.songs.SongInfo(songID, difficulty)
	if err != nil {
		return nil, fmt.Errorf("failed to look up song %d: %w", songID, err)
	}
	if !info.HasChart || info.TotalNoteCount <= 0 {
		return nil, fmt.Errorf("no %s chart for song %d: %w", difficulty, songID, util.ErrPreconditionMissing)
	}
	return info, nil
}

// fill sets the song and hit columns of r from info and counts
func fill(r *store.Record, info *song.Info, difficulty string, c score.Counts) error {
	perfect := info.TotalNoteCount - c.Total()
	if perfect < 0 {
		return fmt.Errorf("%d hits exceed the chart's %d notes: %w", c.Total(), info.TotalNoteCount, util.ErrInvalidInput)
	}

	r.SongID = info.MusicID
	r.SongName = info.Title
	r.Difficulty = difficulty
	r.Perfect = perfect
	r.Great = c.Great
	r.Good = c.Good
	r.Bad = c.Bad
	r.Miss = c.Miss
	return nil
}

func auditFailed(err error) {
	if err != nil {
		util.WarnLog("Failed to write audit event: %v", err)
	}
}

func countsOf(r *store.Record) score.Counts {
	return score.Counts{Great: r.Great, Good: r.Good, Bad: r.Bad, Miss: r.Miss}
}

func newResult(r *store.Record, info *song.Info) *Result {
	res := &Result{Record: r, Info: info}

	c := countsOf(r)
	acc, err := score.Accuracy(info, c)
	if err != nil {
		return res
	}
	rating, err := score.PlayRating(info, c)
	if err != nil {
		return res
	}

	res.HasMetrics = true
	res.Accuracy = acc
	res.Rating = rating
	return res
}

// Submit stores a new attempt stamped with the current time. Two submissions
// by the same user within one second collide and the second fails with
// util.ErrConflict.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	res, err := s.submit(ctx, sub)
	if err != nil {
		auditFailed(s.events.LogReject(report.EventSubmit, "", sub.User, sub.SongID, err))
		return nil, err
	}
	auditFailed(s.events.LogSubmit(res.Record, res.Accuracy, res.Rating))
	return res, nil
}

func (s *Service) submit(ctx context.Context, sub Submission) (*Result, error) {
	sub.User = strings.TrimSpace(sub.User)
	if err := validateSubmission(&sub, true); err != nil {
		return nil, err
	}

	info, err := s.chart(sub.SongID, sub.Difficulty)
	if err != nil {
		return nil, err
	}

	r := &store.Record{
		Time: s.now().Unix(),
		User: sub.User,
	}
	if err := fill(r, info, sub.Difficulty, sub.Counts); err != nil {
		return nil, err
	}

	if err := s.store.InsertRecord(ctx, r); err != nil {
		return nil, err
	}

	util.InfoLog("Recorded %s: %s [%s] perfect=%d great=%d good=%d bad=%d miss=%d",
		r.Key(), r.SongName, r.Difficulty, r.Perfect, r.Great, r.Good, r.Bad, r.Miss)

	return newResult(r, info), nil
}

// Amend rewrites the record at key with a new difficulty and hit counts. The
// key and the song stay as they are; sub.User and sub.SongID are ignored.
// If the row changed since it was read, Amend fails with util.ErrConflict.
func (s *Service) Amend(ctx context.Context, key store.Key, sub Submission) (*Result, error) {
	orig, res, err := s.amend(ctx, key, sub)
	if err != nil {
		songID := 0
		if orig != nil {
			songID = orig.SongID
		}
		auditFailed(s.events.LogReject(report.EventAmend, key.String(), key.User, songID, err))
		return nil, err
	}
	auditFailed(s.events.LogAmend(orig, res.Record))
	return res, nil
}

func (s *Service) amend(ctx context.Context, key store.Key, sub Submission) (*store.Record, *Result, error) {
	if err := validateSubmission(&sub, false); err != nil {
		return nil, nil, err
	}

	orig, err := s.store.GetRecord(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if orig == nil {
		return nil, nil, fmt.Errorf("record %s: %w", key, util.ErrNotFound)
	}

	info, err := s.chart(orig.SongID, sub.Difficulty)
	if err != nil {
		return orig, nil, err
	}

	r := &store.Record{Time: orig.Time, User: orig.User}
	if err := fill(r, info, sub.Difficulty, sub.Counts); err != nil {
		return orig, nil, err
	}
	// Keep the stored title when the catalog has lost the song
	if r.SongName == "" {
		r.SongName = orig.SongName
	}

	swapped, err := s.store.CompareAndSwapRecord(ctx, orig, r)
	if err != nil {
		return orig, nil, err
	}
	if !swapped {
		return orig, nil, fmt.Errorf("record %s changed concurrently: %w", key, util.ErrConflict)
	}

	util.InfoLog("Amended %s: [%s] -> [%s]", key, orig.Difficulty, r.Difficulty)

	return orig, newResult(r, info), nil
}

// Record returns the record at key with its metrics
func (s *Service) Record(ctx context.Context, key store.Key) (*Result, error) {
	r, err := s.store.GetRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("record %s: %w", key, util.ErrNotFound)
	}

	info, err := s.songs.SongInfo(r.SongID, r.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("failed to look up song %d: %w", r.SongID, err)
	}

	return newResult(r, info), nil
}

// Recent returns the user's latest records, newest first
func (s *Service) Recent(ctx context.Context, user string) ([]*store.Record, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty: %w", util.ErrInvalidInput)
	}
	return s.store.RecentRecords(ctx, user, store.RecentLimit)
}

// SongInfo passes through to the song lookup
func (s *Service) SongInfo(songID int, difficulty string) (*song.Info, error) {
	if difficulty != "" && !refdata.ValidDifficulty(difficulty) {
		return nil, fmt.Errorf("unknown difficulty %q: %w", difficulty, util.ErrInvalidInput)
	}
	return s.songs.SongInfo(songID, difficulty)
}

// ResolveAlias passes through to the alias resolver
func (s *Service) ResolveAlias(ctx context.Context, name string) (*alias.Match, error) {
	if s.aliases == nil {
		return nil, fmt.Errorf("no alias resolver configured: %w", util.ErrUpstreamUnavailable)
	}
	return s.aliases.Resolve(ctx, name)
}
