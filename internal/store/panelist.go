package store

import (
	"strings"

	"github.com/StudiUM/concordance/internal/model"
)

const panelistCols = `id, session_id, firstname, lastname, email, biography, emails_sent, user_id`

func scanPanelist(row interface{ Scan(...any) error }) (model.Panelist, error) {
	var p model.Panelist
	err := row.Scan(&p.ID, &p.SessionID, &p.FirstName, &p.LastName, &p.Email,
		&p.Biography, &p.EmailsSent, &p.UserID)
	return p, err
}

// CreatePanelist inserts a panelist record. The email must be unique within
// the session.
func (s *Store) CreatePanelist(p model.Panelist) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO panelists (session_id, firstname, lastname, email, biography) VALUES (?, ?, ?, ?, ?)`,
		p.SessionID, p.FirstName, p.LastName, p.Email, p.Biography,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPanelist returns a panelist by id.
func (s *Store) GetPanelist(id int64) (model.Panelist, error) {
	return scanPanelist(s.db.QueryRow(`SELECT `+panelistCols+` FROM panelists WHERE id = ?`, id))
}

// UpdatePanelist updates the editable fields of a panelist.
func (s *Store) UpdatePanelist(p model.Panelist) error {
	_, err := s.db.Exec(
		`UPDATE panelists SET firstname = ?, lastname = ?, email = ?, biography = ? WHERE id = ?`,
		p.FirstName, p.LastName, p.Email, p.Biography, p.ID,
	)
	return err
}

// DeletePanelist removes the panelist record only; cascading shadow-account
// cleanup is the roster manager's job.
func (s *Store) DeletePanelist(id int64) error {
	_, err := s.db.Exec(`DELETE FROM panelists WHERE id = ?`, id)
	return err
}

// SetPanelistUser links a panelist to their shadow host account.
func (s *Store) SetPanelistUser(panelistID, userID int64) error {
	_, err := s.db.Exec(`UPDATE panelists SET user_id = ? WHERE id = ?`, userID, panelistID)
	return err
}

// IncrementEmailsSent bumps the reminder counter.
func (s *Store) IncrementEmailsSent(panelistID int64) error {
	_, err := s.db.Exec(`UPDATE panelists SET emails_sent = emails_sent + 1 WHERE id = ?`, panelistID)
	return err
}

// ListPanelists returns all panelists of a session ordered by id.
func (s *Store) ListPanelists(sessionID int64) ([]model.Panelist, error) {
	rows, err := s.db.Query(`SELECT `+panelistCols+` FROM panelists WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var panelists []model.Panelist
	for rows.Next() {
		p, err := scanPanelist(rows)
		if err != nil {
			return nil, err
		}
		panelists = append(panelists, p)
	}
	return panelists, rows.Err()
}

// PanelistsByIDs returns the panelists matching ids, scoped to the session;
// ids belonging to other sessions are silently dropped.
func (s *Store) PanelistsByIDs(sessionID int64, ids []int64) ([]model.Panelist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.Query(
		`SELECT `+panelistCols+` FROM panelists WHERE session_id = ? AND id IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var panelists []model.Panelist
	for rows.Next() {
		p, err := scanPanelist(rows)
		if err != nil {
			return nil, err
		}
		panelists = append(panelists, p)
	}
	return panelists, rows.Err()
}

// CountPanelists returns the number of panelists in a session.
func (s *Store) CountPanelists(sessionID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM panelists WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// CountContactedPanelists returns how many panelists were emailed at least once.
func (s *Store) CountContactedPanelists(sessionID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM panelists WHERE session_id = ? AND emails_sent >= 1`, sessionID,
	).Scan(&count)
	return count, err
}

// PanelistByUserID resolves a panelist from their shadow account id.
func (s *Store) PanelistByUserID(userID int64) (model.Panelist, error) {
	return scanPanelist(s.db.QueryRow(`SELECT `+panelistCols+` FROM panelists WHERE user_id = ?`, userID))
}
