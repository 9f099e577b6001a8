package qimport

import (
	"context"
	"os"
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

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedSourceQuiz builds a quiz with four questions: slots 1 and 2 on page 1,
// slot 3 on page 2, slot 4 on page 3.
func seedSourceQuiz(t *testing.T, s *store.Store) int64 {
	t.Helper()
	quizID, err := s.CreateQuiz(model.Quiz{CourseID: 1, Name: "source"})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	pages := []int{1, 1, 2, 3}
	for i, page := range pages {
		qid, err := s.CreateQuestion(model.Question{
			CategoryID: 1,
			Type:       model.QuestionStandardJudgment,
			Name:       "question " + string(rune('A'+i)),
			Text:       "text",
		})
		if err != nil {
			t.Fatalf("CreateQuestion: %v", err)
		}
		for ord := 0; ord < 2; ord++ {
			if _, err := s.CreateAnswer(model.Answer{QuestionID: qid, Order: ord, Text: "choice"}); err != nil {
				t.Fatalf("CreateAnswer: %v", err)
			}
		}
		if _, err := s.CreateSlot(model.Slot{QuizID: quizID, QuestionID: qid, Number: i + 1, Page: page}); err != nil {
			t.Fatalf("CreateSlot: %v", err)
		}
	}
	return quizID
}

func newTargetQuiz(t *testing.T, s *store.Store) model.Quiz {
	t.Helper()
	id, err := s.CreateQuiz(model.Quiz{CourseID: 2, Name: "student copy"})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	quiz, err := s.GetQuiz(id)
	if err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}
	return quiz
}

func TestCopyQuestionsRenumbersSlots(t *testing.T) {
	s := newTestStore(t)
	h := New(s)
	sourceID := seedSourceQuiz(t, s)
	target := newTargetQuiz(t, s)

	// Pick slots 4, 2 and 3; the copy renumbers them 1..3.
	selection := model.StudentQuizSelection{QuestionsToInclude: []int{4, 2, 3}}
	if err := h.CopyQuestions(context.Background(), sourceID, selection, target); err != nil {
		t.Fatalf("CopyQuestions: %v", err)
	}

	slots, err := s.SlotsForQuiz(target.ID)
	if err != nil {
		t.Fatalf("SlotsForQuiz: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	wantNames := []string{"question D", "question B", "question C"}
	for i, sl := range slots {
		if sl.Number != i+1 {
			t.Errorf("slot %d numbered %d", i, sl.Number)
		}
		q, err := s.GetQuestion(sl.QuestionID)
		if err != nil {
			t.Fatalf("GetQuestion: %v", err)
		}
		if q.Name != wantNames[i] {
			t.Errorf("slot %d holds %q, want %q", sl.Number, q.Name, wantNames[i])
		}
		answers, err := s.AnswersForQuestion(sl.QuestionID)
		if err != nil {
			t.Fatalf("AnswersForQuestion: %v", err)
		}
		if len(answers) != 2 {
			t.Errorf("slot %d carried %d answers, want 2", sl.Number, len(answers))
		}
	}
}

func TestCopyQuestionsCompressesPages(t *testing.T) {
	s := newTestStore(t)
	h := New(s)
	sourceID := seedSourceQuiz(t, s)
	target := newTargetQuiz(t, s)

	// Source pages 1,1,2,3; selecting 1,2,4 compresses to pages 1,1,2.
	selection := model.StudentQuizSelection{QuestionsToInclude: []int{1, 2, 4}}
	if err := h.CopyQuestions(context.Background(), sourceID, selection, target); err != nil {
		t.Fatalf("CopyQuestions: %v", err)
	}

	slots, err := s.SlotsForQuiz(target.ID)
	if err != nil {
		t.Fatalf("SlotsForQuiz: %v", err)
	}
	wantPages := []int{1, 1, 2}
	for i, sl := range slots {
		if sl.Page != wantPages[i] {
			t.Errorf("slot %d on page %d, want %d", sl.Number, sl.Page, wantPages[i])
		}
	}
}

func TestCopyQuestionsCreatesFreshCategory(t *testing.T) {
	s := newTestStore(t)
	h := New(s)
	sourceID := seedSourceQuiz(t, s)
	target := newTargetQuiz(t, s)

	selection := model.StudentQuizSelection{QuestionsToInclude: []int{1}}
	if err := h.CopyQuestions(context.Background(), sourceID, selection, target); err != nil {
		t.Fatalf("CopyQuestions: %v", err)
	}

	slots, err := s.SlotsForQuiz(target.ID)
	if err != nil {
		t.Fatalf("SlotsForQuiz: %v", err)
	}
	q, err := s.GetQuestion(slots[0].QuestionID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	category, err := s.GetCategory(q.CategoryID)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if category.CourseID != target.CourseID {
		t.Errorf("category created in course %d, want %d", category.CourseID, target.CourseID)
	}
	if category.Name != "Questions for student copy" {
		t.Errorf("unexpected category name %q", category.Name)
	}
	if category.Stamp == "" {
		t.Error("expected a unique category stamp")
	}
}

func TestCopyQuestionsUnknownSlotFails(t *testing.T) {
	s := newTestStore(t)
	h := New(s)
	sourceID := seedSourceQuiz(t, s)
	target := newTargetQuiz(t, s)

	selection := model.StudentQuizSelection{QuestionsToInclude: []int{9}}
	err := h.CopyQuestions(context.Background(), sourceID, selection, target)
	if err == nil {
		t.Fatal("expected failure for unknown slot")
	}
	slots, serr := s.SlotsForQuiz(target.ID)
	if serr != nil {
		t.Fatalf("SlotsForQuiz: %v", serr)
	}
	if len(slots) != 0 {
		t.Errorf("failed transfer must not leave slots behind, got %d", len(slots))
	}
}

func TestExportRemovableFile(t *testing.T) {
	s := newTestStore(t)
	h := New(s)
	sourceID := seedSourceQuiz(t, s)

	path, err := h.ExportQuestions(sourceID, model.StudentQuizSelection{QuestionsToInclude: []int{1, 2}})
	if err != nil {
		t.Fatalf("ExportQuestions: %v", err)
	}
	defer os.Remove(path)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("interchange file missing: %v", err)
	}
}
