// Package roster manages the expert panel of a session. Panelists are plain
// records until the session has a panel course; from then on each one gets a
// shadow host account, anonymous on purpose, enrolled on the panel course so
// the panel quiz can be attempted without a real login.
package roster

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/store"
)

// Manager maintains panelist records and their shadow accounts.
type Manager struct {
	store *store.Store
	cfg   model.ServiceConfig
}

// New creates a roster manager.
func New(st *store.Store, cfg model.ServiceConfig) *Manager {
	return &Manager{store: st, cfg: cfg}
}

// Create adds a panelist to the session and materializes their shadow
// account when the session already has a panel course.
func (m *Manager) Create(sess model.Session, p model.Panelist) (model.Panelist, error) {
	p.SessionID = sess.ID
	id, err := m.store.CreatePanelist(p)
	if err != nil {
		return model.Panelist{}, fmt.Errorf("create panelist: %w", err)
	}
	p.ID = id
	if sess.PanelCourseID != 0 {
		if err := m.materialize(sess, p); err != nil {
			return model.Panelist{}, err
		}
	}
	return m.store.GetPanelist(id)
}

// Update rewrites a panelist's editable fields and materializes the shadow
// account if it is still missing.
func (m *Manager) Update(sess model.Session, p model.Panelist) error {
	if err := m.store.UpdatePanelist(p); err != nil {
		return fmt.Errorf("update panelist: %w", err)
	}
	current, err := m.store.GetPanelist(p.ID)
	if err != nil {
		return err
	}
	if current.UserID == nil && sess.PanelCourseID != 0 {
		return m.materialize(sess, current)
	}
	return nil
}

// Delete removes a panelist and cascades to their shadow account, which
// also drops its panel course enrolment.
func (m *Manager) Delete(p model.Panelist) error {
	if p.UserID != nil {
		if err := m.store.DeleteUser(*p.UserID); err != nil {
			return fmt.Errorf("delete shadow account: %w", err)
		}
	}
	if err := m.store.DeletePanelist(p.ID); err != nil {
		return fmt.Errorf("delete panelist: %w", err)
	}
	return nil
}

// EnsureUsers materializes the shadow account of every panelist of the
// session that does not have one yet.
func (m *Manager) EnsureUsers(sess model.Session) error {
	if sess.PanelCourseID == 0 {
		return nil
	}
	panelists, err := m.store.ListPanelists(sess.ID)
	if err != nil {
		return err
	}
	for _, p := range panelists {
		if p.UserID != nil {
			continue
		}
		if err := m.materialize(sess, p); err != nil {
			return err
		}
	}
	return nil
}

// materialize creates the anonymous shadow account, enrols it on the panel
// course and links it to the panelist. The account name never exposes the
// panelist's identity to other panel members.
func (m *Manager) materialize(sess model.Session, p model.Panelist) error {
	username := "concordance-panelist-" + uuid.NewString()
	display := "Panelist-" + strconv.FormatInt(p.ID, 10)
	// The account is never logged into directly; the secret only has to be
	// unguessable.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash shadow secret: %w", err)
	}
	userID, err := m.store.CreateUser(model.User{
		Username:  username,
		FirstName: display,
		LastName:  display,
		Email:     username,
		Confirmed: true,
		Shadow:    true,
	}, string(hash))
	if err != nil {
		return fmt.Errorf("create shadow account: %w", err)
	}
	role := m.cfg.PanelistRole
	if role == "" {
		role = model.RoleStudentDefault
	}
	if err := m.store.Enrol(sess.PanelCourseID, userID, role); err != nil {
		return fmt.Errorf("enrol shadow account: %w", err)
	}
	if err := m.store.SetPanelistUser(p.ID, userID); err != nil {
		return fmt.Errorf("link shadow account: %w", err)
	}
	slog.Info("materialized panelist shadow account",
		"session", sess.ID, "panelist", p.ID, "user", userID)
	return nil
}
