// Package phase drives the session lifecycle wizard. A session moves through
// three phases; an unfinished task is still to do while the session sits in
// the setup phase and becomes a failure once the session has advanced past
// it. Informational notices never block.
package phase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/store"
)

// ErrUnknownPhase is returned for a phase name outside the lifecycle.
var ErrUnknownPhase = errors.New("unknown phase")

// Machine computes dashboards and records phase switches.
type Machine struct {
	store *store.Store
}

// New creates a phase machine.
func New(st *store.Store) *Machine {
	return &Machine{store: st}
}

func rank(p model.Phase) int {
	switch p {
	case model.PhaseSetup:
		return 0
	case model.PhasePanelists:
		return 1
	case model.PhaseStudents:
		return 2
	}
	return -1
}

// Switch moves the session to the given phase, recording the switch with a
// snapshot of the prior state. Moving backwards is allowed; the wizard lets
// the instructor revisit earlier phases.
func (m *Machine) Switch(ctx context.Context, actor model.Actor, sessionID int64, to model.Phase) (model.Session, error) {
	if !to.Valid() {
		return model.Session{}, fmt.Errorf("%w: %q", ErrUnknownPhase, to)
	}
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return model.Session{}, fmt.Errorf("session %d: %w", sessionID, err)
	}
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return model.Session{}, fmt.Errorf("snapshot session: %w", err)
	}
	if err := m.store.SetSessionPhase(sessionID, to); err != nil {
		return model.Session{}, fmt.Errorf("switch phase: %w", err)
	}
	if _, err := m.store.InsertEvent(model.Event{
		Type:     model.EventPhaseSwitched,
		ObjectID: sessionID,
		UserID:   actor.UserID,
		Snapshot: string(snapshot),
	}); err != nil {
		return model.Session{}, fmt.Errorf("record phase switch: %w", err)
	}
	slog.Info("session phase switched", "session", sessionID, "from", sess.Phase, "to", to)
	sess.Phase = to
	return sess, nil
}

// Dashboard computes the wizard task list of a session in display order.
func (m *Machine) Dashboard(ctx context.Context, sess model.Session) ([]model.TaskState, error) {
	total, err := m.store.CountPanelists(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("count panelists: %w", err)
	}
	contacted, err := m.store.CountContactedPanelists(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("count contacted panelists: %w", err)
	}

	states := []model.TaskState{
		m.state(sess, model.TaskSettings,
			sess.DescriptionPanel != "" && sess.DescriptionStudent != ""),
		m.quizSelectionState(ctx, sess),
		m.state(sess, model.TaskPanelists, total > 0),
		m.contactState(ctx, sess, total, contacted),
		m.state(sess, model.TaskGenerateQuiz, sess.StudentQuizID != nil),
	}
	return states, nil
}

// state reports an unfinished task as to do during setup and as failed once
// the session has advanced past it.
func (m *Machine) state(sess model.Session, task model.Task, done bool) model.TaskState {
	if done {
		return model.TaskState{Task: task, Status: model.TaskDone}
	}
	if rank(sess.Phase) > rank(model.PhaseSetup) {
		return model.TaskState{Task: task, Status: model.TaskFailed}
	}
	return model.TaskState{Task: task, Status: model.TaskToDo}
}

// quizSelectionState adds the visibility notice: a selected quiz that is
// still open to students leaks the questions before the exercise starts.
func (m *Machine) quizSelectionState(ctx context.Context, sess model.Session) model.TaskState {
	st := m.state(sess, model.TaskQuizSelection, sess.OriginQuizID != nil)
	if sess.OriginQuizID == nil {
		return st
	}
	quiz, err := m.store.GetQuiz(*sess.OriginQuizID)
	if err != nil {
		slog.Warn("failed to load origin quiz for dashboard", "session", sess.ID, "error", err)
		return st
	}
	if quiz.Visible {
		st.Status = model.TaskInfo
		st.Notice = i18n.T(ctx, "notice.quizvisible")
	}
	return st
}

// contactState is done once every panelist was emailed at least once; a
// partial contact shows as a notice instead of a failure.
func (m *Machine) contactState(ctx context.Context, sess model.Session, total, contacted int) model.TaskState {
	st := m.state(sess, model.TaskContactPanelists, total > 0 && contacted == total)
	if total > 0 && contacted > 0 && contacted < total {
		st.Status = model.TaskInfo
		st.Notice = i18n.T(ctx, "notice.panelistsnotcontacted")
	}
	return st
}
