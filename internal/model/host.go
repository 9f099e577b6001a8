package model

import "time"

// User is a host user account. Shadow panelist accounts are Users with
// Shadow set; they cannot log in.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Confirmed bool   `json:"confirmed"`
	Shadow    bool   `json:"shadow"`
	Deleted   bool   `json:"deleted"`
}

// Course is a host course. Panel courses are ephemeral, one per session.
type Course struct {
	ID        int64  `json:"id"`
	Category  string `json:"category"`
	ShortName string `json:"shortname"`
	FullName  string `json:"fullname"`
	Visible   bool   `json:"visible"`
	Deleted   bool   `json:"deleted"` // logically detached, deferred cleanup
}

// Role shortnames used for enrolments.
const (
	RoleEditingTeacher = "editingteacher"
	RoleStudentDefault = "student"
)

// Enrolment is a role assignment on a course.
type Enrolment struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
}

// Quiz behaviours.
const (
	BehaviourDeferred  = "deferredfeedback"
	BehaviourImmediate = "immediatefeedback"
)

// Browser security modes.
const (
	SecurityNone         = "-"
	SecuritySecureWindow = "securewindow"
)

// Review visibility bits, combined per review field.
const (
	ReviewDuring           = 1 << 0
	ReviewImmediatelyAfter = 1 << 1
	ReviewLaterWhileOpen   = 1 << 2
	ReviewAfterClose       = 1 << 3

	// ReviewAll enables a review field at every moment.
	ReviewAll = ReviewDuring | ReviewImmediatelyAfter | ReviewLaterWhileOpen | ReviewAfterClose
)

// ReviewOptions holds the per-field review visibility masks of a quiz.
type ReviewOptions struct {
	Attempt          int `json:"attempt"`
	Correctness      int `json:"correctness"`
	Marks            int `json:"marks"`
	SpecificFeedback int `json:"specific_feedback"`
	GeneralFeedback  int `json:"general_feedback"`
	RightAnswer      int `json:"right_answer"`
	OverallFeedback  int `json:"overall_feedback"`
}

// UniformReviewOptions returns options with every field set to mask.
func UniformReviewOptions(mask int) ReviewOptions {
	return ReviewOptions{
		Attempt:          mask,
		Correctness:      mask,
		Marks:            mask,
		SpecificFeedback: mask,
		GeneralFeedback:  mask,
		RightAnswer:      mask,
		OverallFeedback:  mask,
	}
}

// Quiz is a host quiz module.
type Quiz struct {
	ID              int64         `json:"id"`
	CourseID        int64         `json:"course_id"`
	Name            string        `json:"name"`
	Intro           string        `json:"intro"`
	Visible         bool          `json:"visible"`
	BrowserSecurity string        `json:"browser_security"`
	MaxAttempts     int           `json:"max_attempts"` // 0 = unlimited
	Behaviour       string        `json:"behaviour"`
	Review          ReviewOptions `json:"review"`
	MaxGrade        float64       `json:"max_grade"`
	Section         int           `json:"section"`
	Deleted         bool          `json:"deleted"`
}

// QuestionType tags the closed set of aggregation strategies.
type QuestionType string

const (
	// QuestionStandardJudgment is the single-choice judgment variant.
	QuestionStandardJudgment QuestionType = "judgment"
	// QuestionPerceptionJudgment is the drawing/perception variant.
	QuestionPerceptionJudgment QuestionType = "perception"
	// QuestionOther is any question type this module does not aggregate.
	QuestionOther QuestionType = "other"
)

// Aggregable reports whether panel answers to this question type are combined.
func (t QuestionType) Aggregable() bool {
	return t == QuestionStandardJudgment || t == QuestionPerceptionJudgment
}

// Question is a host question definition.
type Question struct {
	ID              int64        `json:"id"`
	CategoryID      int64        `json:"category_id"`
	Type            QuestionType `json:"type"`
	Name            string       `json:"name"`
	Text            string       `json:"text"`
	GeneralFeedback string       `json:"general_feedback"`
	// ShowOutsideCompetence exposes the opt-out checkbox to the taker.
	// Cleared on student-quiz questions.
	ShowOutsideCompetence bool `json:"show_outside_competence"`
}

// Answer is one ordered answer choice of a question. Fraction carries the
// panelist count after aggregation.
type Answer struct {
	ID         int64   `json:"id"`
	QuestionID int64   `json:"question_id"`
	Order      int     `json:"order"` // 0-indexed
	Text       string  `json:"text"`
	Fraction   float64 `json:"fraction"`
	Feedback   string  `json:"feedback"`
}

// Slot places a question in a quiz at a position and page.
type Slot struct {
	ID         int64 `json:"id"`
	QuizID     int64 `json:"quiz_id"`
	QuestionID int64 `json:"question_id"`
	Number     int   `json:"number"` // 1-indexed position
	Page       int   `json:"page"`
}

// Category is a question category scoped to a course.
type Category struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	Name     string `json:"name"`
	Info     string `json:"info"`
	Stamp    string `json:"stamp"`
}

// QuestionImage is one background image of a perception question.
type QuestionImage struct {
	ID         int64 `json:"id"`
	QuestionID int64 `json:"question_id"`
	Order      int   `json:"order"` // 0-indexed
	Width      int   `json:"width"`
	Height     int   `json:"height"`
}

// ReferenceDrawing is the merged expert annotation stored per question image.
type ReferenceDrawing struct {
	ID           int64     `json:"id"`
	QuestionID   int64     `json:"question_id"`
	Image        int       `json:"image"`
	SVG          string    `json:"svg"`
	Contributors string    `json:"contributors"` // JSON metadata list
	ModifiedAt   time.Time `json:"modified_at"`
}

// Attempt states.
const (
	AttemptInProgress = "inprogress"
	AttemptFinished   = "finished"
)

// Attempt is a user's response set to a quiz. Read-only to this module.
type Attempt struct {
	ID         int64      `json:"id"`
	QuizID     int64      `json:"quiz_id"`
	UserID     int64      `json:"user_id"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Responses maps slot number to the last-step response data of that
	// slot, keyed the way the question engine stores it: "answer",
	// "answerfeedback", "outsidefieldcompetence", "answermultiplechoice",
	// "generalcomment", "answerN", "imagefeedbackN".
	Responses map[int]ResponseData `json:"responses"`
}

// ResponseData is the name->value submission data of one question slot.
type ResponseData map[string]string

// Response keys written by the judgment question types.
const (
	ResponseAnswer            = "answer"
	ResponseAnswerFeedback    = "answerfeedback"
	ResponseOutsideCompetence = "outsidefieldcompetence"
	ResponseMultipleChoice    = "answermultiplechoice"
	ResponseGeneralComment    = "generalcomment"
	// ResponseImageFeedback is suffixed with the image order, like ResponseAnswer
	// on perception questions.
	ResponseImageFeedback = "imagefeedback"
)
