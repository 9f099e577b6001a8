// Package quizdup duplicates quiz modules between courses and derives the
// panel and student quizzes of a session from them. Duplication goes through
// a backup file and a restore step so a quiz can cross course boundaries the
// way the host moves modules around.
package quizdup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/StudiUM/concordance/internal/aggregate"
	"github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/qimport"
	"github.com/StudiUM/concordance/internal/store"
)

// ErrPermissionDenied is returned when the actor may not duplicate the
// source module.
var ErrPermissionDenied = errors.New("permission denied")

// File area names used for the rich description attachments.
const (
	ComponentConcordance   = "concordance"
	ComponentQuiz          = "quiz"
	AreaDescriptionPanel   = "descriptionpanelist"
	AreaDescriptionStudent = "descriptionstudent"
	AreaQuizIntro          = "intro"
)

// Manager drives quiz duplication and publication.
type Manager struct {
	store     *store.Store
	questions *qimport.Handler
	engine    *aggregate.Engine
	cfg       model.ServiceConfig
}

// New creates a duplication manager.
func New(st *store.Store, questions *qimport.Handler, engine *aggregate.Engine, cfg model.ServiceConfig) *Manager {
	return &Manager{store: st, questions: questions, engine: engine, cfg: cfg}
}

// Backup snapshot written to the transfer file.
type backupFile struct {
	Quiz      model.Quiz       `json:"quiz"`
	Questions []backupQuestion `json:"questions"`
}

type backupQuestion struct {
	Question model.Question        `json:"question"`
	Answers  []model.Answer        `json:"answers"`
	Images   []model.QuestionImage `json:"images"`
	Slot     model.Slot            `json:"slot"`
}

// CloneModule duplicates a quiz module into another course and returns the
// new quiz id. The actor needs editing rights on the source course; on the
// target course they are enrolled for the duration of the restore and the
// enrolment is revoked again on every exit path.
func (m *Manager) CloneModule(ctx context.Context, actor model.Actor, quizID, targetCourseID int64) (int64, error) {
	quiz, err := m.store.GetQuiz(quizID)
	if err != nil {
		return 0, fmt.Errorf("source quiz %d: %w", quizID, err)
	}
	allowed, err := m.store.HasRoleAssignment(quiz.CourseID, actor.UserID, model.RoleEditingTeacher)
	if err != nil {
		return 0, fmt.Errorf("check source permission: %w", err)
	}
	if !allowed {
		return 0, ErrPermissionDenied
	}

	enrolled, err := m.store.HasRoleAssignment(targetCourseID, actor.UserID, model.RoleEditingTeacher)
	if err != nil {
		return 0, fmt.Errorf("check target enrolment: %w", err)
	}
	if !enrolled {
		if err := m.store.Enrol(targetCourseID, actor.UserID, model.RoleEditingTeacher); err != nil {
			return 0, fmt.Errorf("enrol on target course: %w", err)
		}
		defer func() {
			if err := m.store.Unenrol(targetCourseID, actor.UserID, model.RoleEditingTeacher); err != nil {
				slog.Warn("failed to revoke temporary enrolment",
					"course", targetCourseID, "user", actor.UserID, "error", err)
			}
		}()
	}

	path, err := m.backup(quiz)
	if err != nil {
		return 0, fmt.Errorf("backup quiz %d: %w", quizID, err)
	}
	defer os.Remove(path)

	newID, err := m.restore(path, targetCourseID)
	if err != nil {
		return 0, fmt.Errorf("restore quiz into course %d: %w", targetCourseID, err)
	}
	if _, err := m.store.InsertEvent(model.Event{
		Type:     model.EventModuleCreated,
		ObjectID: newID,
		UserID:   actor.UserID,
	}); err != nil {
		return 0, fmt.Errorf("record module creation: %w", err)
	}
	return newID, nil
}

// backup snapshots a quiz with its questions into a temporary transfer file.
func (m *Manager) backup(quiz model.Quiz) (string, error) {
	snapshot := backupFile{Quiz: quiz}
	slots, err := m.store.SlotsForQuiz(quiz.ID)
	if err != nil {
		return "", err
	}
	for _, sl := range slots {
		question, err := m.store.GetQuestion(sl.QuestionID)
		if err != nil {
			return "", err
		}
		answers, err := m.store.AnswersForQuestion(question.ID)
		if err != nil {
			return "", err
		}
		images, err := m.store.ImagesForQuestion(question.ID)
		if err != nil {
			return "", err
		}
		snapshot.Questions = append(snapshot.Questions, backupQuestion{
			Question: question, Answers: answers, Images: images, Slot: sl,
		})
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), "concordance-backup-"+uuid.NewString()+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// restore recreates the snapshot in the target course, questions included,
// and returns the new quiz id.
func (m *Manager) restore(path string, targetCourseID int64) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var snapshot backupFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return 0, err
	}

	quiz := snapshot.Quiz
	quiz.CourseID = targetCourseID
	newID, err := m.store.CreateQuiz(quiz)
	if err != nil {
		return 0, err
	}
	if len(snapshot.Questions) == 0 {
		return newID, nil
	}
	category, err := m.store.CreateCategory(model.Category{
		CourseID: targetCourseID,
		Name:     quiz.Name,
		Stamp:    uuid.NewString(),
	})
	if err != nil {
		return 0, err
	}
	for _, bq := range snapshot.Questions {
		question := bq.Question
		question.CategoryID = category.ID
		questionID, err := m.store.CreateQuestion(question)
		if err != nil {
			return 0, err
		}
		for _, a := range bq.Answers {
			a.QuestionID = questionID
			if _, err := m.store.CreateAnswer(a); err != nil {
				return 0, err
			}
		}
		for _, img := range bq.Images {
			img.QuestionID = questionID
			if _, err := m.store.CreateQuestionImage(img); err != nil {
				return 0, err
			}
		}
		if _, err := m.store.CreateSlot(model.Slot{
			QuizID:     newID,
			QuestionID: questionID,
			Number:     bq.Slot.Number,
			Page:       bq.Slot.Page,
		}); err != nil {
			return 0, err
		}
	}
	return newID, nil
}

// PublishPanelQuiz regenerates the panel quiz from the session's origin quiz.
// An already generated panel quiz is deleted first; without an origin quiz
// the call is a no-op and returns nil. The copy is taken out of grading,
// locked to one attempt in a secure window, and shows the panelists only
// their own responses.
func (m *Manager) PublishPanelQuiz(ctx context.Context, actor model.Actor, sess model.Session) (*int64, error) {
	if sess.PanelQuizID != nil {
		if err := m.store.DeleteQuiz(*sess.PanelQuizID, m.cfg.SyncDeletion); err != nil {
			return nil, fmt.Errorf("delete previous panel quiz: %w", err)
		}
		if err := m.store.SetPanelQuiz(sess.ID, nil); err != nil {
			return nil, fmt.Errorf("clear panel quiz reference: %w", err)
		}
	}
	if sess.OriginQuizID == nil {
		return nil, nil
	}

	newID, err := m.CloneModule(ctx, actor, *sess.OriginQuizID, sess.PanelCourseID)
	if err != nil {
		return nil, err
	}
	quiz, err := m.store.GetQuiz(newID)
	if err != nil {
		return nil, fmt.Errorf("reload panel quiz: %w", err)
	}
	quiz.Visible = true
	quiz.BrowserSecurity = model.SecuritySecureWindow
	quiz.MaxAttempts = 1
	quiz.Behaviour = model.BehaviourDeferred
	quiz.Review = model.ReviewOptions{Attempt: model.ReviewAll}
	quiz.Intro = sess.DescriptionPanel
	quiz.MaxGrade = 0
	if err := m.store.UpdateQuiz(quiz); err != nil {
		return nil, fmt.Errorf("configure panel quiz: %w", err)
	}
	if err := m.store.SetQuizMaxGrade(newID, 0); err != nil {
		return nil, fmt.Errorf("remove panel quiz from gradebook: %w", err)
	}
	if err := m.store.CopyFileArea(
		ComponentConcordance, AreaDescriptionPanel, sess.ID, 0,
		ComponentQuiz, AreaQuizIntro, newID,
	); err != nil {
		return nil, fmt.Errorf("copy panel description files: %w", err)
	}
	if err := m.store.SetPanelQuiz(sess.ID, &newID); err != nil {
		return nil, fmt.Errorf("record panel quiz: %w", err)
	}
	return &newID, nil
}

// PublishStudentQuiz generates the student quiz: a hidden copy of the origin
// module whose questions are replaced by the selection from the panel quiz,
// with the panel answers aggregated into it. An already generated student
// quiz is deleted first, so a session never holds two. Returns nil without
// error when the session has no panel quiz yet, no panel attempts exist, or
// the selection holds no questions.
func (m *Manager) PublishStudentQuiz(ctx context.Context, actor model.Actor, sess model.Session,
	selection model.StudentQuizSelection) (*int64, error) {

	if sess.StudentQuizID != nil {
		if err := m.store.DeleteQuiz(*sess.StudentQuizID, m.cfg.SyncDeletion); err != nil {
			return nil, fmt.Errorf("delete previous student quiz: %w", err)
		}
		if err := m.store.SetStudentQuiz(sess.ID, nil); err != nil {
			return nil, fmt.Errorf("clear student quiz reference: %w", err)
		}
	}
	if sess.PanelQuizID == nil || sess.OriginQuizID == nil || !selection.HasQuestions() {
		return nil, nil
	}
	attempts, err := m.store.CountAttempts(*sess.PanelQuizID)
	if err != nil {
		return nil, fmt.Errorf("count panel attempts: %w", err)
	}
	if attempts == 0 {
		return nil, nil
	}

	newID, err := m.CloneModule(ctx, actor, *sess.OriginQuizID, sess.CourseID)
	if err != nil {
		return nil, err
	}
	if err := m.store.RemoveSlots(newID); err != nil {
		return nil, fmt.Errorf("clear copied questions: %w", err)
	}

	quiz, err := m.store.GetQuiz(newID)
	if err != nil {
		return nil, fmt.Errorf("reload student quiz: %w", err)
	}
	quiz.Visible = false
	quiz.BrowserSecurity = model.SecurityNone
	quiz.MaxAttempts = 0
	if selection.Name != "" {
		quiz.Name = selection.Name
	}
	quiz.Intro = m.studentIntro(ctx, sess, selection)
	grade := 0.0
	switch selection.QuizType {
	case model.QuizTypeFormative:
		quiz.Behaviour = model.BehaviourImmediate
		quiz.Review = model.UniformReviewOptions(model.ReviewAll)
	case model.QuizTypeSummativeWithFeedback:
		quiz.Behaviour = model.BehaviourDeferred
		quiz.Review = model.UniformReviewOptions(
			model.ReviewImmediatelyAfter | model.ReviewLaterWhileOpen | model.ReviewAfterClose)
		grade = m.cfg.MaxGrade
	case model.QuizTypeSummativeWithoutFeedback:
		quiz.Behaviour = model.BehaviourDeferred
		quiz.Review = model.UniformReviewOptions(0)
		grade = m.cfg.MaxGrade
	default:
		return nil, fmt.Errorf("unknown quiz type %q", selection.QuizType)
	}
	quiz.MaxGrade = grade
	if err := m.store.UpdateQuiz(quiz); err != nil {
		return nil, fmt.Errorf("configure student quiz: %w", err)
	}
	if err := m.store.SetQuizMaxGrade(newID, grade); err != nil {
		return nil, fmt.Errorf("update student quiz grade: %w", err)
	}
	if err := m.store.CopyFileArea(
		ComponentConcordance, AreaDescriptionStudent, sess.ID, 0,
		ComponentQuiz, AreaQuizIntro, newID,
	); err != nil {
		return nil, fmt.Errorf("copy student description files: %w", err)
	}

	if err := m.questions.CopyQuestions(ctx, *sess.PanelQuizID, selection, quiz); err != nil {
		return nil, err
	}

	origin, err := m.store.GetQuiz(*sess.OriginQuizID)
	if err != nil {
		return nil, fmt.Errorf("origin quiz: %w", err)
	}
	if err := m.store.MoveQuizToSection(newID, origin.Section); err != nil {
		return nil, fmt.Errorf("move student quiz: %w", err)
	}

	panelAttempts, err := m.store.AttemptsForQuiz(*sess.PanelQuizID)
	if err != nil {
		return nil, fmt.Errorf("load panel attempts: %w", err)
	}
	panelists, err := m.store.ListPanelists(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load panelists: %w", err)
	}
	result, err := m.engine.Aggregate(*sess.PanelQuizID, panelAttempts, panelists, selection)
	if err != nil {
		return nil, fmt.Errorf("aggregate panel answers: %w", err)
	}
	if err := m.engine.Apply(actor, newID, result); err != nil {
		return nil, fmt.Errorf("apply aggregation: %w", err)
	}

	if err := m.store.SetStudentQuiz(sess.ID, &newID); err != nil {
		return nil, fmt.Errorf("record student quiz: %w", err)
	}
	return &newID, nil
}

// studentIntro builds the student quiz description, appending the panelist
// biographies when the selection asks for them.
func (m *Manager) studentIntro(ctx context.Context, sess model.Session, selection model.StudentQuizSelection) string {
	intro := sess.DescriptionStudent
	if !selection.IncludeBiography {
		return intro
	}
	panelists, err := m.store.PanelistsByIDs(sess.ID, selection.PanelistsToInclude)
	if err != nil {
		slog.Warn("failed to load panelist biographies", "session", sess.ID, "error", err)
		return intro
	}
	intro += "<h3>" + i18n.T(ctx, "biographies.heading") + "</h3>"
	for _, p := range panelists {
		intro += "<h4>" + p.FullName() + "</h4>" + p.Biography
	}
	return intro
}
