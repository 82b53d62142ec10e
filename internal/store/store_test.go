package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/franz/pjsk-record/internal/util"
	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "database", "pjsk.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// deleteRecord removes a row directly; the application never deletes records
func deleteRecord(t *testing.T, s *Store, key Key) {
	t.Helper()
	if _, err := s.db.Exec("DELETE FROM record WHERE time = ? AND user = ?", key.Time, key.User); err != nil {
		t.Fatalf("failed to delete record: %v", err)
	}
}

func sampleRecord(time int64, user string) *Record {
	return &Record{
		SongID:     163,
		SongName:   "the EmpErroR",
		Difficulty: "master",
		Perfect:    1580,
		Great:      10,
		Good:       1,
		Bad:        1,
		Miss:       1,
		Time:       time,
		User:       user,
	}
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	for _, table := range []string{"record", "schema_version"} {
		var count int
		err := store.db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	// Running the migrations again must be harmless
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema on migrated store failed: %v", err)
	}
}

func TestRecordInsertAndRetrieve(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleRecord(1700000000, "alice")
	if err := store.InsertRecord(ctx, want); err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}

	got, err := store.GetRecord(ctx, want.Key())
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if got == nil {
		t.Fatal("expected to retrieve record, got nil")
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	deleteRecord(t, store, want.Key())

	got, err = store.GetRecord(ctx, want.Key())
	if err != nil {
		t.Fatalf("failed to get deleted record: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestRecordDuplicateKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertRecord(ctx, sampleRecord(1700000000, "alice")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	second := sampleRecord(1700000000, "alice")
	second.Difficulty = "expert"
	err := store.InsertRecord(ctx, second)
	if err == nil {
		t.Fatal("expected second insert with same (time, user) to fail")
	}
	if !errors.Is(err, util.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Same second, different user is fine
	if err := store.InsertRecord(ctx, sampleRecord(1700000000, "bob")); err != nil {
		t.Errorf("insert for another user failed: %v", err)
	}
}

func TestRecentRecordsOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Insert the newer one first
	for _, r := range []*Record{
		sampleRecord(2000, "alice"),
		sampleRecord(1000, "alice"),
		sampleRecord(1500, "bob"),
	} {
		if err := store.InsertRecord(ctx, r); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	recent, err := store.RecentRecords(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}

	if len(recent) != 2 {
		t.Fatalf("expected 2 records for alice, got %d", len(recent))
	}
	if recent[0].Time != 2000 || recent[1].Time != 1000 {
		t.Errorf("expected times [2000 1000], got [%d %d]", recent[0].Time, recent[1].Time)
	}

	none, err := store.RecentRecords(ctx, "carol", 0)
	if err != nil {
		t.Fatalf("RecentRecords for unknown user failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestRecentRecordsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= RecentLimit+5; i++ {
		if err := store.InsertRecord(ctx, sampleRecord(i, "alice")); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	testCases := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, RecentLimit},
		{"above cap", 500, RecentLimit},
		{"explicit", 3, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recent, err := store.RecentRecords(ctx, "alice", tc.limit)
			if err != nil {
				t.Fatalf("RecentRecords failed: %v", err)
			}
			if len(recent) != tc.want {
				t.Errorf("expected %d records, got %d", tc.want, len(recent))
			}
			if recent[0].Time != RecentLimit+5 {
				t.Errorf("expected newest record first, got time %d", recent[0].Time)
			}
		})
	}
}

func TestUpdateRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	orig := sampleRecord(1700000000, "alice")
	if err := store.InsertRecord(ctx, orig); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	changed := *orig
	changed.Difficulty = "expert"
	changed.Perfect = 1000
	changed.Great = 0
	changed.Good = 0
	changed.Bad = 0
	changed.Miss = 0

	rows, err := store.UpdateRecord(ctx, orig.Key(), &changed)
	if err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected 1 row updated, got %d", rows)
	}

	got, _ := store.GetRecord(ctx, orig.Key())
	if diff := cmp.Diff(&changed, got); diff != "" {
		t.Errorf("record mismatch after update (-want +got):\n%s", diff)
	}

	// Missing key updates nothing and is not an error
	rows, err = store.UpdateRecord(ctx, Key{Time: 1, User: "nobody"}, &changed)
	if err != nil {
		t.Fatalf("UpdateRecord on missing key returned error: %v", err)
	}
	if rows != 0 {
		t.Errorf("expected 0 rows updated, got %d", rows)
	}
}

func TestCompareAndSwapRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	orig := sampleRecord(1700000000, "alice")
	if err := store.InsertRecord(ctx, orig); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	first := *orig
	first.Miss = 0
	first.Perfect = orig.Perfect + 1

	ok, err := store.CompareAndSwapRecord(ctx, orig, &first)
	if err != nil {
		t.Fatalf("CompareAndSwapRecord failed: %v", err)
	}
	if !ok {
		t.Fatal("expected swap against the current row to succeed")
	}

	// A second writer still holding the original row loses
	second := *orig
	second.Difficulty = "hard"
	ok, err = store.CompareAndSwapRecord(ctx, orig, &second)
	if err != nil {
		t.Fatalf("CompareAndSwapRecord failed: %v", err)
	}
	if ok {
		t.Error("expected stale swap to be rejected")
	}

	got, _ := store.GetRecord(ctx, orig.Key())
	if got.Difficulty != "master" || got.Miss != 0 {
		t.Errorf("expected first writer's values to survive, got %+v", got)
	}
}

func TestCountRecordsAndIntegrity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := store.InsertRecord(ctx, sampleRecord(i, "alice")); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	count, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 records, got %d", count)
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}

	if v := SQLiteVersion(); v == "" {
		t.Error("expected a SQLite version string")
	}
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pjsk.db")
	ctx := context.Background()

	rw, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := rw.InsertRecord(ctx, sampleRecord(1760000000, "alice")); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}
	rw.Close()

	ro, err := OpenWithOptions(path, &OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("failed to open read-only store: %v", err)
	}
	defer ro.Close()

	records, err := ro.RecentRecords(ctx, "alice", RecentLimit)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	if err := ro.InsertRecord(ctx, sampleRecord(1760000001, "alice")); err == nil {
		t.Error("expected write to a read-only store to fail")
	}
}
