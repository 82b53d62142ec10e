package store

// Schema v1 - score record table
// (time, user) is the primary key: one submission per user per second.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Submitted score attempts
CREATE TABLE IF NOT EXISTS record (
  song_id INTEGER NOT NULL,
  song_name TEXT NOT NULL,
  difficulty TEXT NOT NULL,
  perfect INTEGER NOT NULL,
  great INTEGER NOT NULL,
  good INTEGER NOT NULL,
  bad INTEGER NOT NULL,
  miss INTEGER NOT NULL,
  time INTEGER NOT NULL,
  user TEXT NOT NULL,
  PRIMARY KEY (time, user)
);
`

// Schema v2 - index backing the per-user recency query
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_record_user_time ON record(user, time DESC);
`
