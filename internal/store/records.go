package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/franz/pjsk-record/internal/util"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RecentLimit caps the per-user recency query
const RecentLimit = 50

// Key identifies a record: submission time (epoch seconds) and user id
type Key struct {
	Time int64
	User string
}

// String renders the key as "time/user", the form used in URLs
func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.Time, k.User)
}

// Record is one submitted score attempt
type Record struct {
	SongID     int    `db:"song_id"`
	SongName   string `db:"song_name"`
	Difficulty string `db:"difficulty"`
	Perfect    int    `db:"perfect"`
	Great      int    `db:"great"`
	Good       int    `db:"good"`
	Bad        int    `db:"bad"`
	Miss       int    `db:"miss"`
	Time       int64  `db:"time"`
	User       string `db:"user"`
}

// Key returns the record's primary key
func (r *Record) Key() Key {
	return Key{Time: r.Time, User: r.User}
}

const recordColumns = `song_id, song_name, difficulty, perfect, great, good, bad, miss, time, user`

// InsertRecord appends a record. A second record with the same (time, user)
// is rejected with an error wrapping util.ErrConflict.
func (s *Store) InsertRecord(ctx context.Context, r *Record) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO record (`+recordColumns+`)
		VALUES (:song_id, :song_name, :difficulty, :perfect, :great, :good, :bad, :miss, :time, :user)
	`, r)

	if isConstraintViolation(err) {
		return fmt.Errorf("failed to insert record %s: %w", r.Key(), util.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by its key. Returns (nil, nil) if absent.
func (s *Store) GetRecord(ctx context.Context, key Key) (*Record, error) {
	r := &Record{}
	err := s.db.GetContext(ctx, r, `
		SELECT `+recordColumns+`
		FROM record WHERE time = ? AND user = ?
	`, key.Time, key.User)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return r, nil
}

// UpdateRecord overwrites every non-key column of the row at key.
// It returns the number of rows changed; a missing key changes zero rows
// and is not an error.
func (s *Store) UpdateRecord(ctx context.Context, key Key, r *Record) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE record SET
			song_id = ?, song_name = ?, difficulty = ?,
			perfect = ?, great = ?, good = ?, bad = ?, miss = ?
		WHERE time = ? AND user = ?
	`, r.SongID, r.SongName, r.Difficulty,
		r.Perfect, r.Great, r.Good, r.Bad, r.Miss,
		key.Time, key.User)

	if err != nil {
		return 0, fmt.Errorf("failed to update record: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// CompareAndSwapRecord overwrites the row identified by expected's key only if
// the row still holds exactly expected's values. It reports whether the swap
// happened. The key columns of r are ignored.
func (s *Store) CompareAndSwapRecord(ctx context.Context, expected, r *Record) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE record SET
			song_id = ?, song_name = ?, difficulty = ?,
			perfect = ?, great = ?, good = ?, bad = ?, miss = ?
		WHERE time = ? AND user = ?
		  AND song_id = ? AND song_name = ? AND difficulty = ?
		  AND perfect = ? AND great = ? AND good = ? AND bad = ? AND miss = ?
	`, r.SongID, r.SongName, r.Difficulty,
		r.Perfect, r.Great, r.Good, r.Bad, r.Miss,
		expected.Time, expected.User,
		expected.SongID, expected.SongName, expected.Difficulty,
		expected.Perfect, expected.Great, expected.Good, expected.Bad, expected.Miss)

	if err != nil {
		return false, fmt.Errorf("failed to swap record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows == 1, nil
}

// RecentRecords returns a user's records, newest first. limit <= 0 or above
// RecentLimit is clamped to RecentLimit.
func (s *Store) RecentRecords(ctx context.Context, user string, limit int) ([]*Record, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}

	records := []*Record{}
	err := s.db.SelectContext(ctx, &records, `
		SELECT `+recordColumns+`
		FROM record
		WHERE user = ?
		ORDER BY time DESC
		LIMIT ?
	`, user, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}

	return records, nil
}

// CountRecords returns the total number of stored records
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM record"); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
