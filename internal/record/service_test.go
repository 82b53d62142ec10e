package record

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/pjsk-record/internal/alias"
	"github.com/franz/pjsk-record/internal/report"
	"github.com/franz/pjsk-record/internal/score"
	"github.com/franz/pjsk-record/internal/song"
	"github.com/franz/pjsk-record/internal/store"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/google/go-cmp/cmp"
)

func ptr(f float64) *float64 { return &f }

// fakeSongs serves a fixed set of charts keyed by "id/difficulty"
type fakeSongs struct {
	charts map[int]map[string]*song.Info
	titles map[int]string
}

func newFakeSongs() *fakeSongs {
	return &fakeSongs{
		titles: map[int]string{163: "the EmpErroR", 226: "Hello, SEKAI"},
		charts: map[int]map[string]*song.Info{
			163: {
				"expert": {PlayLevel: 29, TotalNoteCount: 1210},
				"master": {PlayLevel: 36, TotalNoteCount: 1593, FullComboAdjust: ptr(0.4), FullPerfectAdjust: ptr(1.0)},
			},
			226: {
				"master": {PlayLevel: 28, TotalNoteCount: 1012},
			},
		},
	}
}

func (f *fakeSongs) SongInfo(songID int, difficulty string) (*song.Info, error) {
	info := &song.Info{MusicID: songID, Title: f.titles[songID]}
	if difficulty == "" {
		info.Difficulties = map[string]int{}
		for d, c := range f.charts[songID] {
			info.Difficulties[d] = c.PlayLevel
		}
		return info, nil
	}

	info.Difficulty = difficulty
	if c, ok := f.charts[songID][difficulty]; ok {
		info.HasChart = true
		info.PlayLevel = c.PlayLevel
		info.TotalNoteCount = c.TotalNoteCount
		info.FullComboAdjust = c.FullComboAdjust
		info.FullPerfectAdjust = c.FullPerfectAdjust
	}
	return info, nil
}

type fakeAliases map[string]*alias.Match

func (f fakeAliases) Resolve(ctx context.Context, name string) (*alias.Match, error) {
	if m, ok := f[name]; ok {
		return m, nil
	}
	return nil, util.ErrNotFound
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *store.Store, *fixedClock) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "pjsk.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clock := &fixedClock{t: time.Unix(1760000000, 0)}
	svc := NewService(&Config{
		Store:   st,
		Songs:   newFakeSongs(),
		Aliases: fakeAliases{"皇帝": {Title: "the EmpErroR", MusicID: 163, Score: 1}},
		Now:     clock.Now,
	})
	return svc, st, clock
}

func TestSubmit(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Submit(ctx, Submission{
		SongID:     163,
		Difficulty: "master",
		User:       " alice ",
		Counts:     score.Counts{Great: 10, Good: 1, Bad: 1, Miss: 1},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := &store.Record{
		SongID:     163,
		SongName:   "the EmpErroR",
		Difficulty: "master",
		Perfect:    1580,
		Great:      10,
		Good:       1,
		Bad:        1,
		Miss:       1,
		Time:       1760000000,
		User:       "alice",
	}
	if diff := cmp.Diff(want, res.Record); diff != "" {
		t.Errorf("submitted record mismatch (-want +got):\n%s", diff)
	}

	stored, err := st.GetRecord(ctx, want.Key())
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}

	if !res.HasMetrics {
		t.Fatal("expected metrics on submission")
	}
	wantAcc := 1 - float64(10+2+3+3)/float64(1593*3)
	if res.Accuracy != wantAcc {
		t.Errorf("expected accuracy %v, got %v", wantAcc, res.Accuracy)
	}
	if res.Rating != 36*wantAcc {
		t.Errorf("expected rating %v, got %v", 36*wantAcc, res.Rating)
	}
}

func TestSubmitFullPerfect(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.Submit(context.Background(), Submission{SongID: 163, Difficulty: "master", User: "alice"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Record.Perfect != 1593 || res.Accuracy != 1.0 || res.Rating != 37.0 {
		t.Errorf("unexpected full perfect result: perfect=%d acc=%v rating=%v",
			res.Record.Perfect, res.Accuracy, res.Rating)
	}
}

func TestSubmitSameSecond(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	sub := Submission{SongID: 163, Difficulty: "master", User: "alice"}

	if _, err := svc.Submit(ctx, sub); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if _, err := svc.Submit(ctx, sub); !errors.Is(err, util.ErrConflict) {
		t.Errorf("expected ErrConflict for same-second submission, got %v", err)
	}

	// Another user in the same second is fine
	sub.User = "bob"
	if _, err := svc.Submit(ctx, sub); err != nil {
		t.Errorf("Submit for another user failed: %v", err)
	}

	clock.t = clock.t.Add(time.Second)
	sub.User = "alice"
	if _, err := svc.Submit(ctx, sub); err != nil {
		t.Errorf("Submit one second later failed: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	testCases := []struct {
		name    string
		sub     Submission
		wantErr error
	}{
		{"unknown difficulty", Submission{SongID: 163, Difficulty: "insane", User: "alice"}, util.ErrInvalidInput},
		{"empty user", Submission{SongID: 163, Difficulty: "master", User: "  "}, util.ErrInvalidInput},
		{"negative count", Submission{SongID: 163, Difficulty: "master", User: "alice", Counts: score.Counts{Bad: -1}}, util.ErrInvalidInput},
		{"more hits than notes", Submission{SongID: 226, Difficulty: "master", User: "alice", Counts: score.Counts{Miss: 1013}}, util.ErrInvalidInput},
		{"missing chart", Submission{SongID: 226, Difficulty: "append", User: "alice"}, util.ErrPreconditionMissing},
		{"unknown song", Submission{SongID: 9999, Difficulty: "master", User: "alice"}, util.ErrPreconditionMissing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.Submit(context.Background(), tc.sub)
			if res != nil {
				t.Errorf("expected no result, got %+v", res)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAmend(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	orig, err := svc.Submit(ctx, Submission{SongID: 163, Difficulty: "master", User: "alice", Counts: score.Counts{Miss: 3}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	key := orig.Record.Key()

	// SongID and User in the amendment are ignored
	res, err := svc.Amend(ctx, key, Submission{SongID: 226, Difficulty: "expert", User: "mallory", Counts: score.Counts{Great: 5}})
	if err != nil {
		t.Fatalf("Amend failed: %v", err)
	}

	stored, err := st.GetRecord(ctx, key)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	want := &store.Record{
		SongID:     163,
		SongName:   "the EmpErroR",
		Difficulty: "expert",
		Perfect:    1205,
		Great:      5,
		Time:       key.Time,
		User:       "alice",
	}
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Errorf("amended record mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, res.Record); diff != "" {
		t.Errorf("returned record mismatch (-want +got):\n%s", diff)
	}
}

func TestAmendMissingRecord(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Amend(context.Background(), store.Key{Time: 1, User: "nobody"},
		Submission{Difficulty: "master"})
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// racingStore changes the row between the read and the swap
type racingStore struct {
	*store.Store
}

func (r racingStore) CompareAndSwapRecord(ctx context.Context, expected, rec *store.Record) (bool, error) {
	other := *expected
	other.Miss++
	other.Perfect--
	if _, err := r.Store.UpdateRecord(ctx, expected.Key(), &other); err != nil {
		return false, err
	}
	return r.Store.CompareAndSwapRecord(ctx, expected, rec)
}

func TestAmendLostRace(t *testing.T) {
	svc, st, clock := newTestService(t)
	ctx := context.Background()

	orig, err := svc.Submit(ctx, Submission{SongID: 163, Difficulty: "master", User: "alice"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	racy := NewService(&Config{Store: racingStore{st}, Songs: newFakeSongs(), Now: clock.Now})
	if _, err := racy.Amend(ctx, orig.Record.Key(), Submission{Difficulty: "expert"}); !errors.Is(err, util.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	stored, _ := st.GetRecord(ctx, orig.Record.Key())
	if stored.Difficulty != "master" || stored.Miss != 1 {
		t.Errorf("expected the concurrent write to win, got %+v", stored)
	}
}

func TestRecordAndRecent(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Submit(ctx, Submission{SongID: 226, Difficulty: "master", User: "alice", Counts: score.Counts{Miss: i}}); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		clock.t = clock.t.Add(time.Minute)
	}

	recent, err := svc.Recent(ctx, "alice")
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	if recent[0].Miss != 2 || recent[2].Miss != 0 {
		t.Errorf("expected newest first, got misses %d..%d", recent[0].Miss, recent[2].Miss)
	}

	res, err := svc.Record(ctx, recent[1].Key())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.Record.Miss != 1 || !res.HasMetrics {
		t.Errorf("unexpected record result: %+v", res)
	}

	if _, err := svc.Record(ctx, store.Key{Time: 1, User: "alice"}); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Recent(ctx, ""); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty user, got %v", err)
	}
}

func TestResolveAlias(t *testing.T) {
	svc, _, _ := newTestService(t)

	match, err := svc.ResolveAlias(context.Background(), "皇帝")
	if err != nil {
		t.Fatalf("ResolveAlias failed: %v", err)
	}
	if match.MusicID != 163 {
		t.Errorf("expected 163, got %d", match.MusicID)
	}

	if _, err := svc.ResolveAlias(context.Background(), "nothing"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSongInfoRejectsUnknownDifficulty(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.SongInfo(163, "insane"); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	info, err := svc.SongInfo(163, "")
	if err != nil {
		t.Fatalf("SongInfo failed: %v", err)
	}
	if len(info.Difficulties) != 2 {
		t.Errorf("expected 2 difficulties, got %v", info.Difficulties)
	}
}

func TestAuditEvents(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "pjsk.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	events, err := report.NewEventLogger(t.TempDir(), report.LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	clock := &fixedClock{t: time.Unix(1760000000, 0)}
	svc := NewService(&Config{Store: st, Songs: newFakeSongs(), Events: events, Now: clock.Now})
	ctx := context.Background()

	res, err := svc.Submit(ctx, Submission{SongID: 163, Difficulty: "master", User: "alice"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	svc.Submit(ctx, Submission{SongID: 163, Difficulty: "master", User: "alice"})
	if _, err := svc.Amend(ctx, res.Record.Key(), Submission{Difficulty: "expert"}); err != nil {
		t.Fatalf("Amend failed: %v", err)
	}
	// No append chart for 163; the web form never sends a song id
	if _, err := svc.Amend(ctx, res.Record.Key(), Submission{Difficulty: "append"}); !errors.Is(err, util.ErrPreconditionMissing) {
		t.Fatalf("expected ErrPreconditionMissing, got %v", err)
	}
	events.Close()

	data, err := os.ReadFile(events.Path())
	if err != nil {
		t.Fatalf("failed to read event log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected submit, reject, amend and reject events, got %d lines:\n%s", len(lines), data)
	}
	for i, want := range []string{`"event":"submit"`, `"event":"reject"`, `"event":"amend"`, `"event":"reject"`} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d: expected %s, got %s", i, want, lines[i])
		}
	}

	var rejected report.Event
	if err := json.Unmarshal([]byte(lines[3]), &rejected); err != nil {
		t.Fatalf("failed to decode amend rejection: %v", err)
	}
	if rejected.Action != "amend" || rejected.SongID != 163 || rejected.RecordKey != res.Record.Key().String() {
		t.Errorf("amend rejection should carry the stored song and key, got %+v", rejected)
	}
}
