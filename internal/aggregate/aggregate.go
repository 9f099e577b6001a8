// Package aggregate combines the panelists' attempts at the panel quiz into
// per-choice weights, attributed feedback and merged drawings, and writes
// the result into the generated student quiz.
package aggregate

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/StudiUM/concordance/internal/model"
)

// Store is the subset of the host gateway the engine needs.
type Store interface {
	SlotsForQuiz(quizID int64) ([]model.Slot, error)
	GetQuestion(id int64) (model.Question, error)
	AnswersForQuestion(questionID int64) ([]model.Answer, error)
	ImagesForQuestion(questionID int64) ([]model.QuestionImage, error)
	UpdateAnswer(a model.Answer) error
	UpdateQuestion(q model.Question) error
	UpsertReferenceDrawing(d model.ReferenceDrawing) error
	InsertEvent(e model.Event) (int64, error)
}

// CombinedAnswer accumulates one answer choice of one question slot.
type CombinedAnswer struct {
	Count    int
	Feedback string
}

// Contributor is one panelist's metadata on a merged drawing.
type Contributor struct {
	Panelist      string `json:"panelist"`
	ID            string `json:"id"`
	ImageFeedback string `json:"imagefeedback"`
}

// CombinedDrawing accumulates the merged annotation of one question image.
type CombinedDrawing struct {
	Body         string
	Width        int
	Height       int
	Contributors []Contributor
}

// Result is the outcome of one aggregation run. All maps are keyed by the
// student quiz's slot numbers.
type Result struct {
	Answers         map[int]map[int]*CombinedAnswer
	Drawings        map[int]map[int]*CombinedDrawing
	GeneralFeedback map[int]string
}

// ContributorID returns the stable class/id hash of a panelist, derived
// from their full name and record id.
func ContributorID(p model.Panelist) string {
	sum := md5.Sum([]byte(p.FirstName + p.LastName + strconv.FormatInt(p.ID, 10)))
	return hex.EncodeToString(sum[:])
}

// Engine walks panel attempts and writes combined results back.
type Engine struct {
	store Store
}

// New creates an aggregation engine.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// contribution is one panelist's response to one panel question, resolved
// to the student quiz slot it feeds.
type contribution struct {
	panelist model.Panelist
	question model.Question
	newSlot  int
	data     model.ResponseData
}

// strategy is the per-question-type aggregation behaviour.
type strategy interface {
	// extractContributorAnswer reads the chosen answer index and the
	// free-text justification from the response data.
	extractContributorAnswer(data model.ResponseData) (choice int, feedback string, ok bool)
	// mergeIntoAccumulator folds everything beyond the choice tally
	// (drawings, image feedback, general comments) into the result.
	mergeIntoAccumulator(e *Engine, res *Result, c contribution) error
}

func strategyFor(t model.QuestionType) (strategy, bool) {
	switch t {
	case model.QuestionStandardJudgment:
		return standardJudgment{}, true
	case model.QuestionPerceptionJudgment:
		return perceptionJudgment{}, true
	}
	return nil, false
}

type standardJudgment struct{}

func (standardJudgment) extractContributorAnswer(data model.ResponseData) (int, string, bool) {
	raw, ok := data[model.ResponseAnswer]
	if !ok {
		return 0, "", false
	}
	choice, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "", false
	}
	return choice, data[model.ResponseAnswerFeedback], true
}

func (standardJudgment) mergeIntoAccumulator(*Engine, *Result, contribution) error {
	return nil
}

type perceptionJudgment struct{}

func (perceptionJudgment) extractContributorAnswer(data model.ResponseData) (int, string, bool) {
	raw, ok := data[model.ResponseMultipleChoice]
	if !ok {
		return 0, "", false
	}
	choice, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "", false
	}
	return choice, data[model.ResponseAnswerFeedback], true
}

func (perceptionJudgment) mergeIntoAccumulator(e *Engine, res *Result, c contribution) error {
	images, err := e.store.ImagesForQuestion(c.question.ID)
	if err != nil {
		return fmt.Errorf("images for question %d: %w", c.question.ID, err)
	}
	uid := ContributorID(c.panelist)
	for _, img := range images {
		if res.Drawings[c.newSlot] == nil {
			res.Drawings[c.newSlot] = make(map[int]*CombinedDrawing)
		}
		drawing := res.Drawings[c.newSlot][img.Order]
		if drawing == nil {
			drawing = &CombinedDrawing{Width: img.Width, Height: img.Height}
			res.Drawings[c.newSlot][img.Order] = drawing
		}
		if svg, ok := c.data[model.ResponseAnswer+strconv.Itoa(img.Order)]; ok {
			body, err := retagContribution(svg, uid, c.panelist.FullName())
			if err != nil {
				// Undocumented svg shapes are not guessed at; the
				// contribution is skipped, the tally already counted.
				slog.Warn("skipping malformed drawing contribution",
					"panelist", c.panelist.ID, "question", c.question.ID,
					"image", img.Order, "error", err)
			} else {
				drawing.Body += body
			}
		}
		drawing.Contributors = append(drawing.Contributors, Contributor{
			Panelist:      c.panelist.FullName(),
			ID:            uid,
			ImageFeedback: c.data[model.ResponseImageFeedback+strconv.Itoa(img.Order)],
		})
	}

	if comment, ok := c.data[model.ResponseGeneralComment]; ok && comment != "" {
		name := c.panelist.FullName()
		if name != "" {
			name += "&nbsp;:"
		}
		res.GeneralFeedback[c.newSlot] += "<strong>" + name + "</strong>" + comment + "<hr>"
	}
	return nil
}

// attributedFeedback renders one panelist's justification as an attributed
// paragraph block.
func attributedFeedback(p model.Panelist, feedback string) string {
	name := p.FullName()
	if name != "" && feedback != "" {
		name += "&nbsp;:"
	}
	block := "<p><strong>" + name + "</strong></p>"
	if feedback != "" {
		block += "<p>" + feedback + "</p>"
	}
	return block
}

// Aggregate combines the given attempts into per-choice counts, attributed
// feedback, merged drawings and general comments.
//
// Only the most recent attempt per panelist counts, panelists outside the
// selection contribute nothing, and a response flagged outside the
// panelist's field of competence is skipped. Result maps are keyed by the
// student quiz slot numbers of the selection's slot mapping. Iteration is by
// panelist id ascending, so feedback ordering is deterministic.
func (e *Engine) Aggregate(panelQuizID int64, attempts []model.Attempt,
	panelists []model.Panelist, selection model.StudentQuizSelection) (*Result, error) {

	res := &Result{
		Answers:         make(map[int]map[int]*CombinedAnswer),
		Drawings:        make(map[int]map[int]*CombinedDrawing),
		GeneralFeedback: make(map[int]string),
	}

	byUser := make(map[int64]model.Panelist, len(panelists))
	for _, p := range panelists {
		if p.UserID != nil {
			byUser[*p.UserID] = p
		}
	}

	// Questions of the panel quiz by slot number.
	slots, err := e.store.SlotsForQuiz(panelQuizID)
	if err != nil {
		return nil, fmt.Errorf("slots for panel quiz: %w", err)
	}
	questionBySlot := make(map[int]model.Question, len(slots))
	for _, sl := range slots {
		q, err := e.store.GetQuestion(sl.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", sl.QuestionID, err)
		}
		questionBySlot[sl.Number] = q
	}

	// Latest attempt per selected panelist, ordered by panelist id.
	latest := make(map[int64]model.Attempt)
	for _, a := range attempts {
		p, ok := byUser[a.UserID]
		if !ok || !selection.IncludesPanelist(p.ID) {
			continue
		}
		prev, seen := latest[p.ID]
		if !seen || a.StartedAt.After(prev.StartedAt) {
			latest[p.ID] = a
		}
	}
	order := make([]int64, 0, len(latest))
	for id := range latest {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	newSlotFor := make(map[int]int, len(selection.QuestionsToInclude))
	for newSlot, oldSlot := range selection.SlotMapping() {
		newSlotFor[oldSlot] = newSlot
	}

	for _, panelistID := range order {
		attempt := latest[panelistID]
		panelist := byUser[attempt.UserID]
		for oldSlot, data := range attempt.Responses {
			newSlot, included := newSlotFor[oldSlot]
			if !included {
				continue
			}
			question, ok := questionBySlot[oldSlot]
			if !ok {
				continue
			}
			strat, aggregable := strategyFor(question.Type)
			if !aggregable {
				continue
			}
			if data[model.ResponseOutsideCompetence] == "1" {
				continue
			}
			choice, feedback, ok := strat.extractContributorAnswer(data)
			if !ok {
				continue
			}
			if res.Answers[newSlot] == nil {
				res.Answers[newSlot] = make(map[int]*CombinedAnswer)
			}
			combined := res.Answers[newSlot][choice]
			if combined == nil {
				combined = &CombinedAnswer{}
				res.Answers[newSlot][choice] = combined
			}
			combined.Count++
			combined.Feedback += attributedFeedback(panelist, feedback)

			if err := strat.mergeIntoAccumulator(e, res, contribution{
				panelist: panelist,
				question: question,
				newSlot:  newSlot,
				data:     data,
			}); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// Apply writes an aggregation result into the student quiz's questions.
// Every answer choice of every aggregable question ends in a defined state:
// either the combined count and feedback, or zeroed. Each modified question
// is reported edited so host caches pick up the change.
func (e *Engine) Apply(actor model.Actor, studentQuizID int64, res *Result) error {
	slots, err := e.store.SlotsForQuiz(studentQuizID)
	if err != nil {
		return fmt.Errorf("slots for student quiz: %w", err)
	}
	for _, sl := range slots {
		question, err := e.store.GetQuestion(sl.QuestionID)
		if err != nil {
			return fmt.Errorf("question %d: %w", sl.QuestionID, err)
		}
		if !question.Type.Aggregable() {
			continue
		}
		if question.ShowOutsideCompetence {
			question.ShowOutsideCompetence = false
			if err := e.store.UpdateQuestion(question); err != nil {
				return fmt.Errorf("clear competence option on question %d: %w", question.ID, err)
			}
		}
		answers, err := e.store.AnswersForQuestion(question.ID)
		if err != nil {
			return fmt.Errorf("answers for question %d: %w", question.ID, err)
		}
		for _, answer := range answers {
			if combined := res.Answers[sl.Number][answer.Order]; combined != nil {
				answer.Fraction = float64(combined.Count)
				answer.Feedback = combined.Feedback
			} else {
				answer.Fraction = 0
				answer.Feedback = ""
			}
			if err := e.store.UpdateAnswer(answer); err != nil {
				return fmt.Errorf("update answer %d: %w", answer.ID, err)
			}
		}
		if _, err := e.store.InsertEvent(model.Event{
			Type:     model.EventQuestionEdited,
			ObjectID: question.ID,
			UserID:   actor.UserID,
		}); err != nil {
			return fmt.Errorf("notify question edited: %w", err)
		}

		if question.Type != model.QuestionPerceptionJudgment {
			continue
		}
		for image, drawing := range res.Drawings[sl.Number] {
			meta, err := json.Marshal(drawing.Contributors)
			if err != nil {
				return fmt.Errorf("marshal contributors: %w", err)
			}
			if err := e.store.UpsertReferenceDrawing(model.ReferenceDrawing{
				QuestionID:   question.ID,
				Image:        image,
				SVG:          buildFullSVG(drawing),
				Contributors: string(meta),
			}); err != nil {
				return fmt.Errorf("upsert drawing for question %d image %d: %w", question.ID, image, err)
			}
		}
		if general, ok := res.GeneralFeedback[sl.Number]; ok {
			question.GeneralFeedback = general
			if err := e.store.UpdateQuestion(question); err != nil {
				return fmt.Errorf("update general feedback on question %d: %w", question.ID, err)
			}
		}
	}
	return nil
}
