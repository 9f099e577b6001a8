package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed gateway to the host records this module works
// with: courses, users, quizzes, questions, attempts, plus the concordance
// sessions and panelists themselves.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		panel_course_id INTEGER NOT NULL DEFAULT 0,
		origin_quiz_id INTEGER,
		panel_quiz_id INTEGER,
		student_quiz_id INTEGER,
		description_panelist TEXT NOT NULL DEFAULT '',
		description_student TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL DEFAULT 'setup',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS panelists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		firstname TEXT NOT NULL,
		lastname TEXT NOT NULL,
		email TEXT NOT NULL,
		biography TEXT NOT NULL DEFAULT '',
		emails_sent INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER,
		UNIQUE (session_id, email),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		firstname TEXT NOT NULL,
		lastname TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		confirmed INTEGER NOT NULL DEFAULT 0,
		shadow INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL DEFAULT '',
		shortname TEXT NOT NULL UNIQUE,
		fullname TEXT NOT NULL,
		visible INTEGER NOT NULL DEFAULT 1,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS enrolments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		UNIQUE (course_id, user_id, role)
	);

	CREATE TABLE IF NOT EXISTS quizzes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		intro TEXT NOT NULL DEFAULT '',
		visible INTEGER NOT NULL DEFAULT 1,
		browser_security TEXT NOT NULL DEFAULT '-',
		max_attempts INTEGER NOT NULL DEFAULT 0,
		behaviour TEXT NOT NULL DEFAULT 'deferredfeedback',
		review_attempt INTEGER NOT NULL DEFAULT 0,
		review_correctness INTEGER NOT NULL DEFAULT 0,
		review_marks INTEGER NOT NULL DEFAULT 0,
		review_specific_feedback INTEGER NOT NULL DEFAULT 0,
		review_general_feedback INTEGER NOT NULL DEFAULT 0,
		review_right_answer INTEGER NOT NULL DEFAULT 0,
		review_overall_feedback INTEGER NOT NULL DEFAULT 0,
		max_grade REAL NOT NULL DEFAULT 10,
		section INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS question_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		info TEXT NOT NULL DEFAULT '',
		stamp TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_id INTEGER NOT NULL,
		qtype TEXT NOT NULL,
		name TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		general_feedback TEXT NOT NULL DEFAULT '',
		show_outside_competence INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS question_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL,
		ord INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		fraction REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS quiz_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		page INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
	);

	CREATE TABLE IF NOT EXISTS question_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL,
		ord INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reference_drawings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL,
		image INTEGER NOT NULL,
		svg TEXT NOT NULL,
		contributors TEXT NOT NULL DEFAULT '[]',
		modified_at DATETIME NOT NULL,
		UNIQUE (question_id, image)
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'inprogress',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS attempt_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (attempt_id) REFERENCES quiz_attempts(id)
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		component TEXT NOT NULL,
		filearea TEXT NOT NULL,
		context_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL DEFAULT 0,
		filename TEXT NOT NULL,
		content BLOB
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL DEFAULT 0,
		related_user_id INTEGER NOT NULL DEFAULT 0,
		snapshot TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
