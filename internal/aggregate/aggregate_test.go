package aggregate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// panelFixture seeds a panel quiz with one judgment question, one perception
// question with a drawable image, and one question of a type the engine does
// not combine, plus a student quiz holding copies of the first two in
// reversed order.
type panelFixture struct {
	panelQuizID   int64
	studentQuizID int64

	judgment        model.Question // panel, slot 1
	perception      model.Question // panel, slot 2
	studentJudgment model.Question // student, slot 2
	studentPercep   model.Question // student, slot 1

	ada model.Panelist // user 11
	bob model.Panelist // user 12
	eve model.Panelist // user 13, never selected
}

func addQuestion(t *testing.T, s *store.Store, q model.Question, answers int) model.Question {
	t.Helper()
	id, err := s.CreateQuestion(q)
	if err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	q.ID = id
	for i := 0; i < answers; i++ {
		if _, err := s.CreateAnswer(model.Answer{QuestionID: id, Order: i, Text: "choice"}); err != nil {
			t.Fatalf("CreateAnswer: %v", err)
		}
	}
	return q
}

func addSlot(t *testing.T, s *store.Store, quizID, questionID int64, number int) {
	t.Helper()
	if _, err := s.CreateSlot(model.Slot{QuizID: quizID, QuestionID: questionID, Number: number, Page: number}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
}

func addPanelist(t *testing.T, s *store.Store, sessionID int64, first, last, email string, userID int64) model.Panelist {
	t.Helper()
	id, err := s.CreatePanelist(model.Panelist{SessionID: sessionID, FirstName: first, LastName: last, Email: email})
	if err != nil {
		t.Fatalf("CreatePanelist: %v", err)
	}
	if err := s.SetPanelistUser(id, userID); err != nil {
		t.Fatalf("SetPanelistUser: %v", err)
	}
	p, err := s.GetPanelist(id)
	if err != nil {
		t.Fatalf("GetPanelist: %v", err)
	}
	return p
}

func newPanelFixture(t *testing.T, s *store.Store) panelFixture {
	t.Helper()
	var f panelFixture
	var err error

	sess, err := s.CreateSession(model.Session{CourseID: 1, Name: "panel"}, "cat")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	f.panelQuizID, err = s.CreateQuiz(model.Quiz{CourseID: sess.PanelCourseID, Name: "panel quiz"})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	f.studentQuizID, err = s.CreateQuiz(model.Quiz{CourseID: 1, Name: "student quiz"})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	f.judgment = addQuestion(t, s, model.Question{CategoryID: 1, Type: model.QuestionStandardJudgment,
		Name: "q-judgment", ShowOutsideCompetence: true}, 3)
	f.perception = addQuestion(t, s, model.Question{CategoryID: 1, Type: model.QuestionPerceptionJudgment,
		Name: "q-perception", ShowOutsideCompetence: true}, 2)
	other := addQuestion(t, s, model.Question{CategoryID: 1, Type: model.QuestionOther, Name: "q-essay"}, 0)
	if _, err := s.CreateQuestionImage(model.QuestionImage{QuestionID: f.perception.ID, Order: 0, Width: 800, Height: 600}); err != nil {
		t.Fatalf("CreateQuestionImage: %v", err)
	}
	addSlot(t, s, f.panelQuizID, f.judgment.ID, 1)
	addSlot(t, s, f.panelQuizID, f.perception.ID, 2)
	addSlot(t, s, f.panelQuizID, other.ID, 3)

	// Student quiz: perception first, judgment second.
	f.studentPercep = addQuestion(t, s, model.Question{CategoryID: 2, Type: model.QuestionPerceptionJudgment,
		Name: "q-perception", ShowOutsideCompetence: true}, 2)
	f.studentJudgment = addQuestion(t, s, model.Question{CategoryID: 2, Type: model.QuestionStandardJudgment,
		Name: "q-judgment", ShowOutsideCompetence: true}, 3)
	addSlot(t, s, f.studentQuizID, f.studentPercep.ID, 1)
	addSlot(t, s, f.studentQuizID, f.studentJudgment.ID, 2)

	f.ada = addPanelist(t, s, sess.ID, "Ada", "Lovelace", "ada@example.test", 11)
	f.bob = addPanelist(t, s, sess.ID, "Bob", "Martin", "bob@example.test", 12)
	f.eve = addPanelist(t, s, sess.ID, "Eve", "Short", "eve@example.test", 13)
	return f
}

func (f panelFixture) selection() model.StudentQuizSelection {
	return model.StudentQuizSelection{
		QuestionsToInclude: []int{2, 1},
		PanelistsToInclude: []int64{f.ada.ID, f.bob.ID},
		QuizType:           model.QuizTypeFormative,
	}
}

const adaSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600">` +
	`<g id="paths"><title class="grouptitle">me</title><line x1="1" y1="1" x2="2" y2="2"></line></g></svg>`

func seedAttempts(t *testing.T, s *store.Store, f panelFixture) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempts := []model.Attempt{
		// Ada's first try, superseded below.
		{QuizID: f.panelQuizID, UserID: 11, State: model.AttemptFinished, StartedAt: base,
			Responses: map[int]model.ResponseData{
				1: {model.ResponseAnswer: "1", model.ResponseAnswerFeedback: "first thoughts"},
			}},
		{QuizID: f.panelQuizID, UserID: 11, State: model.AttemptFinished, StartedAt: base.Add(time.Hour),
			Responses: map[int]model.ResponseData{
				1: {model.ResponseAnswer: "0", model.ResponseAnswerFeedback: "Because it is clear"},
				2: {model.ResponseMultipleChoice: "1", "answer0": adaSVG,
					"imagefeedback0": "look left", model.ResponseGeneralComment: "overall fine"},
				3: {model.ResponseAnswer: "0"},
			}},
		{QuizID: f.panelQuizID, UserID: 12, State: model.AttemptFinished, StartedAt: base,
			Responses: map[int]model.ResponseData{
				1: {model.ResponseAnswer: "0", model.ResponseAnswerFeedback: "It is obvious"},
				2: {model.ResponseMultipleChoice: "0", model.ResponseOutsideCompetence: "1"},
			}},
		// Eve answers but is never part of the selection.
		{QuizID: f.panelQuizID, UserID: 13, State: model.AttemptFinished, StartedAt: base,
			Responses: map[int]model.ResponseData{
				1: {model.ResponseAnswer: "2", model.ResponseAnswerFeedback: "dissent"},
			}},
	}
	for i, a := range attempts {
		if _, err := s.InsertAttempt(a); err != nil {
			t.Fatalf("InsertAttempt %d: %v", i, err)
		}
	}
}

func aggregateFixture(t *testing.T, s *store.Store, f panelFixture) *Result {
	t.Helper()
	attempts, err := s.AttemptsForQuiz(f.panelQuizID)
	if err != nil {
		t.Fatalf("AttemptsForQuiz: %v", err)
	}
	panelists := []model.Panelist{f.ada, f.bob, f.eve}
	res, err := New(s).Aggregate(f.panelQuizID, attempts, panelists, f.selection())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	return res
}

func TestAggregateCombinesAnswers(t *testing.T) {
	s := newTestStore(t)
	f := newPanelFixture(t, s)
	seedAttempts(t, s, f)

	res := aggregateFixture(t, s, f)

	// Judgment question feeds student slot 2. Both selected panelists chose
	// answer 0; Ada's superseded first attempt must not count.
	combined := res.Answers[2][0]
	if combined == nil || combined.Count != 2 {
		t.Fatalf("expected count 2 for slot 2 answer 0, got %+v", combined)
	}
	if res.Answers[2][1] != nil {
		t.Errorf("superseded attempt leaked into the tally: %+v", res.Answers[2][1])
	}
	ada := "<p><strong>Ada Lovelace&nbsp;:</strong></p><p>Because it is clear</p>"
	bob := "<p><strong>Bob Martin&nbsp;:</strong></p><p>It is obvious</p>"
	if combined.Feedback != ada+bob {
		t.Errorf("feedback not attributed in panelist order:\n%s", combined.Feedback)
	}

	// Eve was not selected.
	if res.Answers[2][2] != nil {
		t.Errorf("unselected panelist counted: %+v", res.Answers[2][2])
	}

	// Perception question feeds student slot 1. Bob opted out of this one.
	if got := res.Answers[1][1]; got == nil || got.Count != 1 {
		t.Fatalf("expected count 1 for slot 1 answer 1, got %+v", got)
	}
	if res.Answers[1][0] != nil {
		t.Errorf("opted-out response counted: %+v", res.Answers[1][0])
	}
}

func TestAggregateMergesDrawings(t *testing.T) {
	s := newTestStore(t)
	f := newPanelFixture(t, s)
	seedAttempts(t, s, f)

	res := aggregateFixture(t, s, f)

	drawing := res.Drawings[1][0]
	if drawing == nil {
		t.Fatal("expected a merged drawing for slot 1 image 0")
	}
	if drawing.Width != 800 || drawing.Height != 600 {
		t.Errorf("expected 800x600, got %dx%d", drawing.Width, drawing.Height)
	}
	uid := ContributorID(f.ada)
	if !strings.Contains(drawing.Body, `class="panelistdrawing `+uid+`"`) {
		t.Errorf("drawing body not retagged for Ada: %s", drawing.Body)
	}
	if len(drawing.Contributors) != 1 {
		t.Fatalf("expected 1 contributor, got %d", len(drawing.Contributors))
	}
	c := drawing.Contributors[0]
	if c.Panelist != "Ada Lovelace" || c.ID != uid || c.ImageFeedback != "look left" {
		t.Errorf("unexpected contributor: %+v", c)
	}

	want := "<strong>Ada Lovelace&nbsp;:</strong>overall fine<hr>"
	if res.GeneralFeedback[1] != want {
		t.Errorf("general feedback = %q, want %q", res.GeneralFeedback[1], want)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	s := newTestStore(t)
	f := newPanelFixture(t, s)
	seedAttempts(t, s, f)

	first := aggregateFixture(t, s, f)
	second := aggregateFixture(t, s, f)
	if first.Answers[2][0].Feedback != second.Answers[2][0].Feedback {
		t.Error("feedback concatenation order changed between runs")
	}
}

func TestApplyWritesBack(t *testing.T) {
	s := newTestStore(t)
	f := newPanelFixture(t, s)
	seedAttempts(t, s, f)
	engine := New(s)

	res := aggregateFixture(t, s, f)
	actor := model.Actor{UserID: 1, FirstName: "Iris", LastName: "Teacher"}
	if err := engine.Apply(actor, f.studentQuizID, res); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Judgment copy: answer 0 carries the count, the rest are zeroed.
	answers, err := s.AnswersForQuestion(f.studentJudgment.ID)
	if err != nil {
		t.Fatalf("AnswersForQuestion: %v", err)
	}
	if answers[0].Fraction != 2 || answers[0].Feedback == "" {
		t.Errorf("expected answer 0 weighted 2 with feedback, got %+v", answers[0])
	}
	for _, a := range answers[1:] {
		if a.Fraction != 0 || a.Feedback != "" {
			t.Errorf("expected answer %d zeroed, got %+v", a.Order, a)
		}
	}

	// The opt-out checkbox never reaches students.
	q, err := s.GetQuestion(f.studentJudgment.ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.ShowOutsideCompetence {
		t.Error("expected outside-competence option cleared")
	}

	// Perception copy: merged drawing stored, general feedback written.
	d, err := s.GetReferenceDrawing(f.studentPercep.ID, 0)
	if err != nil {
		t.Fatalf("GetReferenceDrawing: %v", err)
	}
	if !strings.HasPrefix(d.SVG, `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600">`) {
		t.Errorf("unexpected merged svg: %s", d.SVG)
	}
	var contributors []Contributor
	if err := json.Unmarshal([]byte(d.Contributors), &contributors); err != nil {
		t.Fatalf("contributors metadata: %v", err)
	}
	if len(contributors) != 1 || contributors[0].Panelist != "Ada Lovelace" {
		t.Errorf("unexpected contributors: %+v", contributors)
	}
	percep, err := s.GetQuestion(f.studentPercep.ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if !strings.Contains(percep.GeneralFeedback, "overall fine") {
		t.Errorf("general feedback not written: %q", percep.GeneralFeedback)
	}

	// Host caches are told about every edited question.
	for _, id := range []int64{f.studentJudgment.ID, f.studentPercep.ID} {
		events, err := s.EventsForObject(model.EventQuestionEdited, id)
		if err != nil {
			t.Fatalf("EventsForObject: %v", err)
		}
		if len(events) == 0 {
			t.Errorf("expected question_edited event for question %d", id)
		}
	}
}
