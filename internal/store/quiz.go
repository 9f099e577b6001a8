package store

import (
	"time"

	"github.com/StudiUM/concordance/internal/model"
)

const quizCols = `id, course_id, name, intro, visible, browser_security, max_attempts, behaviour,
	review_attempt, review_correctness, review_marks, review_specific_feedback,
	review_general_feedback, review_right_answer, review_overall_feedback,
	max_grade, section, deleted`

func scanQuiz(row interface{ Scan(...any) error }) (model.Quiz, error) {
	var q model.Quiz
	err := row.Scan(&q.ID, &q.CourseID, &q.Name, &q.Intro, &q.Visible, &q.BrowserSecurity,
		&q.MaxAttempts, &q.Behaviour,
		&q.Review.Attempt, &q.Review.Correctness, &q.Review.Marks, &q.Review.SpecificFeedback,
		&q.Review.GeneralFeedback, &q.Review.RightAnswer, &q.Review.OverallFeedback,
		&q.MaxGrade, &q.Section, &q.Deleted)
	return q, err
}

// CreateQuiz inserts a quiz module and returns its id.
func (s *Store) CreateQuiz(q model.Quiz) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO quizzes (course_id, name, intro, visible, browser_security, max_attempts, behaviour,
			review_attempt, review_correctness, review_marks, review_specific_feedback,
			review_general_feedback, review_right_answer, review_overall_feedback, max_grade, section)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.CourseID, q.Name, q.Intro, q.Visible, q.BrowserSecurity, q.MaxAttempts, q.Behaviour,
		q.Review.Attempt, q.Review.Correctness, q.Review.Marks, q.Review.SpecificFeedback,
		q.Review.GeneralFeedback, q.Review.RightAnswer, q.Review.OverallFeedback,
		q.MaxGrade, q.Section,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuiz returns a quiz by id.
func (s *Store) GetQuiz(id int64) (model.Quiz, error) {
	return scanQuiz(s.db.QueryRow(`SELECT `+quizCols+` FROM quizzes WHERE id = ?`, id))
}

// UpdateQuiz rewrites every stored quiz setting.
func (s *Store) UpdateQuiz(q model.Quiz) error {
	_, err := s.db.Exec(
		`UPDATE quizzes SET course_id = ?, name = ?, intro = ?, visible = ?, browser_security = ?,
			max_attempts = ?, behaviour = ?,
			review_attempt = ?, review_correctness = ?, review_marks = ?, review_specific_feedback = ?,
			review_general_feedback = ?, review_right_answer = ?, review_overall_feedback = ?,
			max_grade = ?, section = ?
		 WHERE id = ?`,
		q.CourseID, q.Name, q.Intro, q.Visible, q.BrowserSecurity, q.MaxAttempts, q.Behaviour,
		q.Review.Attempt, q.Review.Correctness, q.Review.Marks, q.Review.SpecificFeedback,
		q.Review.GeneralFeedback, q.Review.RightAnswer, q.Review.OverallFeedback,
		q.MaxGrade, q.Section, q.ID,
	)
	return err
}

// DeleteQuiz removes a quiz module. With sync false it is only marked
// deleted; its slots stay behind for the host's deferred cleanup.
func (s *Store) DeleteQuiz(id int64, sync bool) error {
	if !sync {
		_, err := s.db.Exec(`UPDATE quizzes SET deleted = 1 WHERE id = ?`, id)
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM quiz_slots WHERE quiz_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM quizzes WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetQuizVisible toggles the module visibility.
func (s *Store) SetQuizVisible(id int64, visible bool) error {
	_, err := s.db.Exec(`UPDATE quizzes SET visible = ? WHERE id = ?`, visible, id)
	return err
}

// SetQuizMaxGrade updates the quiz maximum grade and stands in for the
// host's gradebook recomputation.
func (s *Store) SetQuizMaxGrade(id int64, grade float64) error {
	_, err := s.db.Exec(`UPDATE quizzes SET max_grade = ? WHERE id = ?`, grade, id)
	return err
}

// MoveQuizToSection places the module in a course section.
func (s *Store) MoveQuizToSection(id int64, section int) error {
	_, err := s.db.Exec(`UPDATE quizzes SET section = ? WHERE id = ?`, section, id)
	return err
}

// Categories and questions.

// CreateCategory inserts a question category and returns it with its id.
func (s *Store) CreateCategory(c model.Category) (model.Category, error) {
	res, err := s.db.Exec(
		`INSERT INTO question_categories (course_id, name, info, stamp) VALUES (?, ?, ?, ?)`,
		c.CourseID, c.Name, c.Info, c.Stamp,
	)
	if err != nil {
		return model.Category{}, err
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

// GetCategory returns a category by id.
func (s *Store) GetCategory(id int64) (model.Category, error) {
	var c model.Category
	err := s.db.QueryRow(
		`SELECT id, course_id, name, info, stamp FROM question_categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.CourseID, &c.Name, &c.Info, &c.Stamp)
	return c, err
}

// CreateQuestion inserts a question and returns its id.
func (s *Store) CreateQuestion(q model.Question) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO questions (category_id, qtype, name, text, general_feedback, show_outside_competence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.CategoryID, q.Type, q.Name, q.Text, q.GeneralFeedback, q.ShowOutsideCompetence,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, category_id, qtype, name, text, general_feedback, show_outside_competence
		 FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.CategoryID, &q.Type, &q.Name, &q.Text, &q.GeneralFeedback, &q.ShowOutsideCompetence)
	return q, err
}

// UpdateQuestion rewrites a question's mutable fields.
func (s *Store) UpdateQuestion(q model.Question) error {
	_, err := s.db.Exec(
		`UPDATE questions SET category_id = ?, name = ?, text = ?, general_feedback = ?, show_outside_competence = ?
		 WHERE id = ?`,
		q.CategoryID, q.Name, q.Text, q.GeneralFeedback, q.ShowOutsideCompetence, q.ID,
	)
	return err
}

// CreateAnswer inserts an answer choice and returns its id.
func (s *Store) CreateAnswer(a model.Answer) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO question_answers (question_id, ord, text, fraction, feedback) VALUES (?, ?, ?, ?, ?)`,
		a.QuestionID, a.Order, a.Text, a.Fraction, a.Feedback,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AnswersForQuestion returns the ordered answer choices of a question.
func (s *Store) AnswersForQuestion(questionID int64) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT id, question_id, ord, text, fraction, feedback
		 FROM question_answers WHERE question_id = ? ORDER BY ord`, questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Order, &a.Text, &a.Fraction, &a.Feedback); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpdateAnswer rewrites an answer's fraction and feedback.
func (s *Store) UpdateAnswer(a model.Answer) error {
	_, err := s.db.Exec(
		`UPDATE question_answers SET text = ?, fraction = ?, feedback = ? WHERE id = ?`,
		a.Text, a.Fraction, a.Feedback, a.ID,
	)
	return err
}

// Slots.

// CreateSlot registers a question in a quiz at a position and page.
func (s *Store) CreateSlot(slot model.Slot) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO quiz_slots (quiz_id, question_id, slot, page) VALUES (?, ?, ?, ?)`,
		slot.QuizID, slot.QuestionID, slot.Number, slot.Page,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SlotsForQuiz returns the slots of a quiz in position order.
func (s *Store) SlotsForQuiz(quizID int64) ([]model.Slot, error) {
	rows, err := s.db.Query(
		`SELECT id, quiz_id, question_id, slot, page FROM quiz_slots WHERE quiz_id = ? ORDER BY slot`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []model.Slot
	for rows.Next() {
		var sl model.Slot
		if err := rows.Scan(&sl.ID, &sl.QuizID, &sl.QuestionID, &sl.Number, &sl.Page); err != nil {
			return nil, err
		}
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}

// RemoveSlots unlinks every question from a quiz.
func (s *Store) RemoveSlots(quizID int64) error {
	_, err := s.db.Exec(`DELETE FROM quiz_slots WHERE quiz_id = ?`, quizID)
	return err
}

// UpdateSlotPage rewrites the stored page of one slot record.
func (s *Store) UpdateSlotPage(slotID int64, page int) error {
	_, err := s.db.Exec(`UPDATE quiz_slots SET page = ? WHERE id = ?`, page, slotID)
	return err
}

// Perception question extras.

// CreateQuestionImage registers a background image of a perception question.
func (s *Store) CreateQuestionImage(img model.QuestionImage) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO question_images (question_id, ord, width, height) VALUES (?, ?, ?, ?)`,
		img.QuestionID, img.Order, img.Width, img.Height,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ImagesForQuestion returns the ordered images of a perception question.
func (s *Store) ImagesForQuestion(questionID int64) ([]model.QuestionImage, error) {
	rows, err := s.db.Query(
		`SELECT id, question_id, ord, width, height FROM question_images WHERE question_id = ? ORDER BY ord`,
		questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var images []model.QuestionImage
	for rows.Next() {
		var img model.QuestionImage
		if err := rows.Scan(&img.ID, &img.QuestionID, &img.Order, &img.Width, &img.Height); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// UpsertReferenceDrawing stores the merged expert drawing of one question image.
func (s *Store) UpsertReferenceDrawing(d model.ReferenceDrawing) error {
	_, err := s.db.Exec(
		`INSERT INTO reference_drawings (question_id, image, svg, contributors, modified_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(question_id, image) DO UPDATE SET svg = ?, contributors = ?, modified_at = ?`,
		d.QuestionID, d.Image, d.SVG, d.Contributors, time.Now(),
		d.SVG, d.Contributors, time.Now(),
	)
	return err
}

// GetReferenceDrawing returns the merged drawing for one question image, or
// ErrNotFound.
func (s *Store) GetReferenceDrawing(questionID int64, image int) (model.ReferenceDrawing, error) {
	var d model.ReferenceDrawing
	err := s.db.QueryRow(
		`SELECT id, question_id, image, svg, contributors, modified_at
		 FROM reference_drawings WHERE question_id = ? AND image = ?`, questionID, image,
	).Scan(&d.ID, &d.QuestionID, &d.Image, &d.SVG, &d.Contributors, &d.ModifiedAt)
	return d, err
}

// Attempts. The panel quiz is taken through the host; this module only reads
// attempts back, except in tests which seed them through InsertAttempt.

// InsertAttempt stores an attempt with its per-slot response data.
func (s *Store) InsertAttempt(a model.Attempt) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	res, err := tx.Exec(
		`INSERT INTO quiz_attempts (quiz_id, user_id, state, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		a.QuizID, a.UserID, a.State, a.StartedAt, a.FinishedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for slot, data := range a.Responses {
		for name, value := range data {
			if _, err := tx.Exec(
				`INSERT INTO attempt_responses (attempt_id, slot, name, value) VALUES (?, ?, ?, ?)`,
				id, slot, name, value,
			); err != nil {
				return 0, err
			}
		}
	}
	return id, tx.Commit()
}

// AttemptsForQuiz returns all attempts at a quiz with response data loaded,
// ordered by user then most recent first. The first attempt seen per user is
// therefore their latest one.
func (s *Store) AttemptsForQuiz(quizID int64) ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT id, quiz_id, user_id, state, started_at, finished_at
		 FROM quiz_attempts WHERE quiz_id = ? ORDER BY user_id, started_at DESC, id DESC`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.UserID, &a.State, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range attempts {
		responses, err := s.responsesForAttempt(attempts[i].ID)
		if err != nil {
			return nil, err
		}
		attempts[i].Responses = responses
	}
	return attempts, nil
}

func (s *Store) responsesForAttempt(attemptID int64) (map[int]model.ResponseData, error) {
	rows, err := s.db.Query(
		`SELECT slot, name, value FROM attempt_responses WHERE attempt_id = ?`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	responses := make(map[int]model.ResponseData)
	for rows.Next() {
		var slot int
		var name, value string
		if err := rows.Scan(&slot, &name, &value); err != nil {
			return nil, err
		}
		if responses[slot] == nil {
			responses[slot] = model.ResponseData{}
		}
		responses[slot][name] = value
	}
	return responses, rows.Err()
}

// CountAttempts returns the number of attempts recorded against a quiz.
func (s *Store) CountAttempts(quizID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = ?`, quizID).Scan(&count)
	return count, err
}

// File areas.

// PutFile stores a file in a component file area.
func (s *Store) PutFile(component, filearea string, contextID, itemID int64, filename string, content []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO files (component, filearea, context_id, item_id, filename, content) VALUES (?, ?, ?, ?, ?, ?)`,
		component, filearea, contextID, itemID, filename, content,
	)
	return err
}

// CopyFileArea copies every file of one component area into another,
// replacing whatever the target area held.
func (s *Store) CopyFileArea(srcComponent, srcArea string, srcContext, srcItem int64,
	dstComponent, dstArea string, dstContext int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(
		`DELETE FROM files WHERE component = ? AND filearea = ? AND context_id = ?`,
		dstComponent, dstArea, dstContext,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO files (component, filearea, context_id, item_id, filename, content)
		 SELECT ?, ?, ?, 0, filename, content FROM files
		 WHERE component = ? AND filearea = ? AND context_id = ? AND item_id = ?`,
		dstComponent, dstArea, dstContext,
		srcComponent, srcArea, srcContext, srcItem,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListFiles returns the filenames stored in a component area.
func (s *Store) ListFiles(component, filearea string, contextID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT filename FROM files WHERE component = ? AND filearea = ? AND context_id = ? ORDER BY id`,
		component, filearea, contextID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
