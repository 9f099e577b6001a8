// Package qimport moves questions from the panel quiz into the student quiz
// through an XML interchange file, the way questions travel between courses
// in the host. The export side renumbers the selection into sequential slots;
// the import side recreates the questions in a fresh category and reapplies
// the original page grouping.
package qimport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/model"
)

// ErrImportFailed marks a question transfer that could not complete. The
// student quiz must not silently end up with a partial question set.
var ErrImportFailed = errors.New("question import failed")

// Store is the subset of the host gateway the transfer needs.
type Store interface {
	SlotsForQuiz(quizID int64) ([]model.Slot, error)
	GetQuestion(id int64) (model.Question, error)
	AnswersForQuestion(questionID int64) ([]model.Answer, error)
	ImagesForQuestion(questionID int64) ([]model.QuestionImage, error)
	CreateCategory(c model.Category) (model.Category, error)
	CreateQuestion(q model.Question) (int64, error)
	CreateAnswer(a model.Answer) (int64, error)
	CreateQuestionImage(img model.QuestionImage) (int64, error)
	CreateSlot(slot model.Slot) (int64, error)
	UpdateSlotPage(slotID int64, page int) error
}

// Handler runs question transfers against a store.
type Handler struct {
	store Store
}

// New creates a transfer handler.
func New(store Store) *Handler {
	return &Handler{store: store}
}

// Interchange document. Questions appear in their student quiz order; Page
// carries the compressed page of the original grouping.
type quizXML struct {
	XMLName   xml.Name      `xml:"quiz"`
	Questions []questionXML `xml:"question"`
}

type questionXML struct {
	Type            string      `xml:"type,attr"`
	Name            string      `xml:"name"`
	Text            string      `xml:"questiontext"`
	GeneralFeedback string      `xml:"generalfeedback"`
	Page            int         `xml:"page"`
	Answers         []answerXML `xml:"answer"`
	Images          []imageXML  `xml:"image"`
}

type answerXML struct {
	Order    int     `xml:"order,attr"`
	Text     string  `xml:"text"`
	Fraction float64 `xml:"fraction"`
	Feedback string  `xml:"feedback"`
}

type imageXML struct {
	Order  int `xml:"order,attr"`
	Width  int `xml:"width"`
	Height int `xml:"height"`
}

// ExportQuestions writes the selected slots of a quiz to a temporary
// interchange file and returns its path. The caller owns the file and must
// remove it whether or not the subsequent import succeeds.
func (h *Handler) ExportQuestions(quizID int64, selection model.StudentQuizSelection) (string, error) {
	slots, err := h.store.SlotsForQuiz(quizID)
	if err != nil {
		return "", fmt.Errorf("slots for quiz %d: %w", quizID, err)
	}
	bySlot := make(map[int]model.Slot, len(slots))
	for _, sl := range slots {
		bySlot[sl.Number] = sl
	}

	var doc quizXML
	page, lastOriginalPage := 0, -1
	for _, oldSlot := range selection.QuestionsToInclude {
		sl, ok := bySlot[oldSlot]
		if !ok {
			return "", fmt.Errorf("quiz %d has no slot %d", quizID, oldSlot)
		}
		question, err := h.store.GetQuestion(sl.QuestionID)
		if err != nil {
			return "", fmt.Errorf("question %d: %w", sl.QuestionID, err)
		}
		// Compress the original page sequence: a new page starts wherever
		// the selection crosses an original page boundary.
		if sl.Page != lastOriginalPage {
			page++
			lastOriginalPage = sl.Page
		}
		qx := questionXML{
			Type:            string(question.Type),
			Name:            question.Name,
			Text:            question.Text,
			GeneralFeedback: question.GeneralFeedback,
			Page:            page,
		}
		answers, err := h.store.AnswersForQuestion(question.ID)
		if err != nil {
			return "", fmt.Errorf("answers for question %d: %w", question.ID, err)
		}
		for _, a := range answers {
			qx.Answers = append(qx.Answers, answerXML{
				Order: a.Order, Text: a.Text, Fraction: a.Fraction, Feedback: a.Feedback,
			})
		}
		images, err := h.store.ImagesForQuestion(question.ID)
		if err != nil {
			return "", fmt.Errorf("images for question %d: %w", question.ID, err)
		}
		for _, img := range images {
			qx.Images = append(qx.Images, imageXML{Order: img.Order, Width: img.Width, Height: img.Height})
		}
		doc.Questions = append(doc.Questions, qx)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize questions: %w", err)
	}
	path := filepath.Join(os.TempDir(), "concordance-questions-"+uuid.NewString()+".xml")
	if err := os.WriteFile(path, append([]byte(xml.Header), data...), 0o600); err != nil {
		return "", fmt.Errorf("write interchange file: %w", err)
	}
	return path, nil
}

// ImportQuestions reads an interchange file and recreates its questions in a
// fresh category of the target quiz's course, appending one slot per question
// and then reapplying the exported page grouping.
func (h *Handler) ImportQuestions(ctx context.Context, path string, target model.Quiz) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read interchange file: %w", err)
	}
	var doc quizXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse interchange file: %w", err)
	}

	category, err := h.store.CreateCategory(model.Category{
		CourseID: target.CourseID,
		Name:     i18n.Td(ctx, "category.name", map[string]any{"Quiz": target.Name}),
		Info:     i18n.Td(ctx, "category.info", map[string]any{"Date": time.Now().Format("2006-01-02")}),
		Stamp:    uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	slotIDs := make([]int64, 0, len(doc.Questions))
	for i, qx := range doc.Questions {
		questionID, err := h.store.CreateQuestion(model.Question{
			CategoryID:            category.ID,
			Type:                  model.QuestionType(qx.Type),
			Name:                  qx.Name,
			Text:                  qx.Text,
			GeneralFeedback:       qx.GeneralFeedback,
			ShowOutsideCompetence: false,
		})
		if err != nil {
			return fmt.Errorf("create question %q: %w", qx.Name, err)
		}
		for _, ax := range qx.Answers {
			if _, err := h.store.CreateAnswer(model.Answer{
				QuestionID: questionID,
				Order:      ax.Order,
				Text:       ax.Text,
				Fraction:   ax.Fraction,
				Feedback:   ax.Feedback,
			}); err != nil {
				return fmt.Errorf("create answer for question %q: %w", qx.Name, err)
			}
		}
		for _, ix := range qx.Images {
			if _, err := h.store.CreateQuestionImage(model.QuestionImage{
				QuestionID: questionID,
				Order:      ix.Order,
				Width:      ix.Width,
				Height:     ix.Height,
			}); err != nil {
				return fmt.Errorf("create image for question %q: %w", qx.Name, err)
			}
		}
		// Each question lands on its own page first; the grouping is
		// reapplied once all slots exist.
		slotID, err := h.store.CreateSlot(model.Slot{
			QuizID:     target.ID,
			QuestionID: questionID,
			Number:     i + 1,
			Page:       i + 1,
		})
		if err != nil {
			return fmt.Errorf("create slot %d: %w", i+1, err)
		}
		slotIDs = append(slotIDs, slotID)
	}

	for i, qx := range doc.Questions {
		if err := h.store.UpdateSlotPage(slotIDs[i], qx.Page); err != nil {
			return fmt.Errorf("set page of slot %d: %w", i+1, err)
		}
	}
	return nil
}

// CopyQuestions exports the selection from the source quiz and imports it
// into the target quiz. The interchange file is removed on every exit path.
// Any failure is reported as ErrImportFailed; a partial transfer is never
// papered over.
func (h *Handler) CopyQuestions(ctx context.Context, sourceQuizID int64, selection model.StudentQuizSelection, target model.Quiz) error {
	path, err := h.ExportQuestions(sourceQuizID, selection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	defer os.Remove(path)
	if err := h.ImportQuestions(ctx, path, target); err != nil {
		return fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	return nil
}
