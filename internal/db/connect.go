package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures the exam schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:examd.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/examd?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student'
);

CREATE TABLE IF NOT EXISTS quiz_questions (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  language TEXT NOT NULL,
  text TEXT NOT NULL,
  correct_answer TEXT NOT NULL,
  wrong_answers_json TEXT NOT NULL,
  explanation TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_quiz_questions_course_lang
  ON quiz_questions (course_id, language);

CREATE TABLE IF NOT EXISTS exam_attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  chapter_id TEXT NOT NULL,
  language TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  finished_at INTEGER,
  finalized INTEGER NOT NULL DEFAULT 0,
  score INTEGER,
  succeeded INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_exam_attempts_user_course
  ON exam_attempts (user_id, course_id, started_at);

CREATE TABLE IF NOT EXISTS exam_question_selections (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES exam_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  correct_position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_selections_attempt
  ON exam_question_selections (attempt_id);

CREATE TABLE IF NOT EXISTS exam_answers (
  selection_id TEXT PRIMARY KEY REFERENCES exam_question_selections(id) ON DELETE CASCADE,
  chosen_position INTEGER NOT NULL,
  answered_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chapter_completions (
  user_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  chapter_id TEXT NOT NULL,
  completed_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, course_id, chapter_id)
);

CREATE TABLE IF NOT EXISTS cert_sync_status (
  attempt_id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  last_error TEXT NOT NULL DEFAULT '',
  retries INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., AttemptGraded
  key TEXT NOT NULL,                         -- natural key: attemptID
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student'
);

CREATE TABLE IF NOT EXISTS quiz_questions (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  language TEXT NOT NULL,
  text TEXT NOT NULL,
  correct_answer TEXT NOT NULL,
  wrong_answers_json TEXT NOT NULL,
  explanation TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_quiz_questions_course_lang
  ON quiz_questions (course_id, language);

CREATE TABLE IF NOT EXISTS exam_attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  chapter_id TEXT NOT NULL,
  language TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  finished_at BIGINT,
  finalized BOOLEAN NOT NULL DEFAULT FALSE,
  score INTEGER,
  succeeded BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_exam_attempts_user_course
  ON exam_attempts (user_id, course_id, started_at);

CREATE TABLE IF NOT EXISTS exam_question_selections (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES exam_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  correct_position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_selections_attempt
  ON exam_question_selections (attempt_id);

CREATE TABLE IF NOT EXISTS exam_answers (
  selection_id TEXT PRIMARY KEY REFERENCES exam_question_selections(id) ON DELETE CASCADE,
  chosen_position INTEGER NOT NULL,
  answered_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapter_completions (
  user_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  chapter_id TEXT NOT NULL,
  completed_at BIGINT NOT NULL,
  PRIMARY KEY (user_id, course_id, chapter_id)
);

CREATE TABLE IF NOT EXISTS cert_sync_status (
  attempt_id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  last_error TEXT NOT NULL DEFAULT '',
  retries INTEGER NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
