package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/StudiUM/concordance/internal/model"
)

const sessionCols = `id, course_id, name, panel_course_id, origin_quiz_id, panel_quiz_id,
	student_quiz_id, description_panelist, description_student, phase, created_at`

func scanSession(row interface{ Scan(...any) error }) (model.Session, error) {
	var sess model.Session
	err := row.Scan(&sess.ID, &sess.CourseID, &sess.Name, &sess.PanelCourseID,
		&sess.OriginQuizID, &sess.PanelQuizID, &sess.StudentQuizID,
		&sess.DescriptionPanel, &sess.DescriptionStudent, &sess.Phase, &sess.CreatedAt)
	return sess, err
}

// CreateSession creates a session together with its ephemeral panel course in
// the given category. The course shortname is derived from the course and
// session ids, with a numeric suffix on collision.
func (s *Store) CreateSession(sess model.Session, panelCategory string) (model.Session, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return model.Session{}, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO sessions (course_id, name, description_panelist, description_student, phase, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.CourseID, sess.Name, sess.DescriptionPanel, sess.DescriptionStudent, model.PhaseSetup, time.Now(),
	)
	if err != nil {
		return model.Session{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Session{}, err
	}

	identifier := fmt.Sprintf("%d-%d", sess.CourseID, id)
	shortname := identifier
	for i := 1; ; i++ {
		var exists int
		err := tx.QueryRow(`SELECT COUNT(*) FROM courses WHERE shortname = ?`, shortname).Scan(&exists)
		if err != nil {
			return model.Session{}, err
		}
		if exists == 0 {
			break
		}
		shortname = fmt.Sprintf("%s(%d)", identifier, i)
	}
	res, err = tx.Exec(
		`INSERT INTO courses (category, shortname, fullname, visible) VALUES (?, ?, ?, 1)`,
		panelCategory, shortname, shortname,
	)
	if err != nil {
		return model.Session{}, err
	}
	courseID, err := res.LastInsertId()
	if err != nil {
		return model.Session{}, err
	}
	if _, err := tx.Exec(`UPDATE sessions SET panel_course_id = ? WHERE id = ?`, courseID, id); err != nil {
		return model.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Session{}, err
	}
	return s.GetSession(id)
}

// GetSession returns a session by id.
func (s *Store) GetSession(id int64) (model.Session, error) {
	return scanSession(s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id))
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionCols + ` FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSession updates the instructor-editable fields.
func (s *Store) UpdateSession(sess model.Session) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET name = ?, origin_quiz_id = ?, description_panelist = ?, description_student = ?
		 WHERE id = ?`,
		sess.Name, sess.OriginQuizID, sess.DescriptionPanel, sess.DescriptionStudent, sess.ID,
	)
	return err
}

// SetSessionPhase updates the lifecycle phase.
func (s *Store) SetSessionPhase(id int64, phase model.Phase) error {
	_, err := s.db.Exec(`UPDATE sessions SET phase = ? WHERE id = ?`, phase, id)
	return err
}

// SetPanelQuiz records the generated panel quiz reference (nil to clear).
func (s *Store) SetPanelQuiz(sessionID int64, quizID *int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET panel_quiz_id = ? WHERE id = ?`, quizID, sessionID)
	return err
}

// SetStudentQuiz records the generated student quiz reference (nil to clear).
func (s *Store) SetStudentQuiz(sessionID int64, quizID *int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET student_quiz_id = ? WHERE id = ?`, quizID, sessionID)
	return err
}

// DeleteSession removes a session, cascading to its panelists, their shadow
// accounts and the panel course. With sync false the course is only marked
// deleted; the actual cleanup is left to the host's deferred deletion.
func (s *Store) DeleteSession(id int64, sync bool) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	panelists, err := s.ListPanelists(id)
	if err != nil {
		return err
	}
	for _, p := range panelists {
		if err := s.DeletePanelist(p.ID); err != nil {
			return err
		}
	}
	if sess.PanelCourseID != 0 {
		if err := s.DeleteCourse(sess.PanelCourseID, sync); err != nil {
			return err
		}
	}
	_, err = s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// InsertEvent records a domain audit event.
func (s *Store) InsertEvent(e model.Event) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO events (type, object_id, user_id, related_user_id, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Type, e.ObjectID, e.UserID, e.RelatedUserID, e.Snapshot, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EventsForObject returns events of one type recorded against an object id.
func (s *Store) EventsForObject(eventType string, objectID int64) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, type, object_id, user_id, related_user_id, snapshot, created_at
		 FROM events WHERE type = ? AND object_id = ? ORDER BY id`, eventType, objectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.ObjectID, &e.UserID, &e.RelatedUserID, &e.Snapshot, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = sql.ErrNoRows
