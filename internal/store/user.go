package store

import (
	"github.com/StudiUM/concordance/internal/model"
)

// CreateUser creates a host user account and returns its id.
func (s *Store) CreateUser(u model.User, passwordHash string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, firstname, lastname, email, password_hash, confirmed, shadow)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.FirstName, u.LastName, u.Email, passwordHash, u.Confirmed, u.Shadow,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUser returns a user by id.
func (s *Store) GetUser(id int64) (model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT id, username, firstname, lastname, email, confirmed, shadow, deleted
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.Confirmed, &u.Shadow, &u.Deleted)
	return u, err
}

// DeleteUser marks the account deleted and removes all its enrolments.
func (s *Store) DeleteUser(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE users SET deleted = 1 WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM enrolments WHERE user_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Enrol assigns a role to a user on a course. Enrolling twice with the same
// role is a no-op.
func (s *Store) Enrol(courseID, userID int64, role string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO enrolments (course_id, user_id, role) VALUES (?, ?, ?)`,
		courseID, userID, role,
	)
	return err
}

// Unenrol removes a role assignment from a user on a course.
func (s *Store) Unenrol(courseID, userID int64, role string) error {
	_, err := s.db.Exec(
		`DELETE FROM enrolments WHERE course_id = ? AND user_id = ? AND role = ?`,
		courseID, userID, role,
	)
	return err
}

// HasRoleAssignment reports whether the user holds the role on the course.
func (s *Store) HasRoleAssignment(courseID, userID int64, role string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM enrolments WHERE course_id = ? AND user_id = ? AND role = ?`,
		courseID, userID, role,
	).Scan(&count)
	return count > 0, err
}

// CreateCourse creates a host course and returns its id.
func (s *Store) CreateCourse(c model.Course) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO courses (category, shortname, fullname, visible) VALUES (?, ?, ?, ?)`,
		c.Category, c.ShortName, c.FullName, c.Visible,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetCourse returns a course by id.
func (s *Store) GetCourse(id int64) (model.Course, error) {
	var c model.Course
	err := s.db.QueryRow(
		`SELECT id, category, shortname, fullname, visible, deleted FROM courses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Category, &c.ShortName, &c.FullName, &c.Visible, &c.Deleted)
	return c, err
}

// DeleteCourse removes a course. With sync false it is only marked deleted,
// leaving the record logically detached for deferred host cleanup.
func (s *Store) DeleteCourse(id int64, sync bool) error {
	if !sync {
		_, err := s.db.Exec(`UPDATE courses SET deleted = 1 WHERE id = ?`, id)
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM enrolments WHERE course_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM courses WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
