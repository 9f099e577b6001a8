package phase

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/store"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var teacher = model.Actor{UserID: 1, FirstName: "Iris", LastName: "Teacher"}

func newTestMachine(t *testing.T) (*Machine, *store.Store, model.Session) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sess, err := s.CreateSession(model.Session{
		CourseID:           1,
		Name:               "test",
		DescriptionPanel:   "<p>for the panel</p>",
		DescriptionStudent: "<p>for the students</p>",
	}, "cat")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return New(s), s, sess
}

func taskStatus(t *testing.T, states []model.TaskState, task model.Task) model.TaskState {
	t.Helper()
	for _, st := range states {
		if st.Task == task {
			return st
		}
	}
	t.Fatalf("task %q missing from dashboard", task)
	return model.TaskState{}
}

func TestSwitchRecordsSnapshot(t *testing.T) {
	m, s, sess := newTestMachine(t)

	updated, err := m.Switch(context.Background(), teacher, sess.ID, model.PhasePanelists)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if updated.Phase != model.PhasePanelists {
		t.Errorf("phase = %q, want panelists", updated.Phase)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Phase != model.PhasePanelists {
		t.Errorf("stored phase = %q, want panelists", got.Phase)
	}

	events, err := s.EventsForObject(model.EventPhaseSwitched, sess.ID)
	if err != nil {
		t.Fatalf("EventsForObject: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 phase_switched event, got %d", len(events))
	}
	if !strings.Contains(events[0].Snapshot, `"phase":"setup"`) {
		t.Errorf("snapshot should capture the prior state: %s", events[0].Snapshot)
	}
}

func TestSwitchUnknownPhase(t *testing.T) {
	m, _, sess := newTestMachine(t)
	if _, err := m.Switch(context.Background(), teacher, sess.ID, "archived"); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

func TestSwitchBackwardsAllowed(t *testing.T) {
	m, _, sess := newTestMachine(t)
	if _, err := m.Switch(context.Background(), teacher, sess.ID, model.PhaseStudents); err != nil {
		t.Fatalf("Switch forward: %v", err)
	}
	if _, err := m.Switch(context.Background(), teacher, sess.ID, model.PhaseSetup); err != nil {
		t.Fatalf("Switch backward: %v", err)
	}
}

func TestDashboardUnfinishedTasks(t *testing.T) {
	m, s, sess := newTestMachine(t)
	ctx := context.Background()

	// In the setup phase nothing has failed yet.
	states, err := m.Dashboard(ctx, sess)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if st := taskStatus(t, states, model.TaskSettings); st.Status != model.TaskDone {
		t.Errorf("settings = %q, want done", st.Status)
	}
	if st := taskStatus(t, states, model.TaskQuizSelection); st.Status != model.TaskToDo {
		t.Errorf("quiz selection = %q, want todo", st.Status)
	}
	if st := taskStatus(t, states, model.TaskPanelists); st.Status != model.TaskToDo {
		t.Errorf("panelists = %q, want todo", st.Status)
	}
	if st := taskStatus(t, states, model.TaskGenerateQuiz); st.Status != model.TaskToDo {
		t.Errorf("generate = %q, want todo", st.Status)
	}

	// Past the setup phase every unfinished task is a failure, later-phase
	// tasks included.
	if err := s.SetSessionPhase(sess.ID, model.PhasePanelists); err != nil {
		t.Fatalf("SetSessionPhase: %v", err)
	}
	sess.Phase = model.PhasePanelists
	states, err = m.Dashboard(ctx, sess)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	for _, task := range []model.Task{
		model.TaskQuizSelection,
		model.TaskPanelists,
		model.TaskContactPanelists,
		model.TaskGenerateQuiz,
	} {
		if st := taskStatus(t, states, task); st.Status != model.TaskFailed {
			t.Errorf("%s = %q, want failed", task, st.Status)
		}
	}
}

func TestDashboardVisibleQuizNotice(t *testing.T) {
	m, s, sess := newTestMachine(t)

	quizID, err := s.CreateQuiz(model.Quiz{CourseID: 1, Name: "origin", Visible: true})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	sess.OriginQuizID = &quizID
	if err := s.UpdateSession(sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	states, err := m.Dashboard(context.Background(), sess)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	st := taskStatus(t, states, model.TaskQuizSelection)
	if st.Status != model.TaskInfo || st.Notice == "" {
		t.Errorf("expected visibility notice, got %+v", st)
	}

	// A hidden origin quiz completes the task without a notice.
	if err := s.SetQuizVisible(quizID, false); err != nil {
		t.Fatalf("SetQuizVisible: %v", err)
	}
	states, err = m.Dashboard(context.Background(), sess)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	st = taskStatus(t, states, model.TaskQuizSelection)
	if st.Status != model.TaskDone || st.Notice != "" {
		t.Errorf("expected done without notice, got %+v", st)
	}
}

func TestDashboardContactProgress(t *testing.T) {
	m, s, sess := newTestMachine(t)
	ctx := context.Background()

	id1, err := s.CreatePanelist(model.Panelist{SessionID: sess.ID, FirstName: "A", LastName: "One", Email: "a@example.test"})
	if err != nil {
		t.Fatalf("CreatePanelist: %v", err)
	}
	if _, err := s.CreatePanelist(model.Panelist{SessionID: sess.ID, FirstName: "B", LastName: "Two", Email: "b@example.test"}); err != nil {
		t.Fatalf("CreatePanelist: %v", err)
	}

	states, err := m.Dashboard(ctx, sess)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if st := taskStatus(t, states, model.TaskContactPanelists); st.Status != model.TaskToDo {
		t.Errorf("contact = %q, want todo before any email", st.Status)
	}

	if err := s.IncrementEmailsSent(id1); err != nil {
		t.Fatalf("IncrementEmailsSent: %v", err)
	}
	states, err = m.Dashboard(ctx, sess)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	st := taskStatus(t, states, model.TaskContactPanelists)
	if st.Status != model.TaskInfo || st.Notice == "" {
		t.Errorf("expected partial-contact notice, got %+v", st)
	}
}
