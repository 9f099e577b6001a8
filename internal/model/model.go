package model

import (
	"time"
)

// Phase represents the lifecycle phase of a concordance session.
type Phase string

const (
	// PhaseSetup is the initial phase where the instructor configures the session.
	PhaseSetup Phase = "setup"
	// PhasePanelists is the phase where panelists answer the panel quiz.
	PhasePanelists Phase = "panelists"
	// PhaseStudents is the phase where the student quiz is generated.
	PhaseStudents Phase = "students"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseSetup, PhasePanelists, PhaseStudents:
		return true
	}
	return false
}

// TaskStatus is the dashboard status of one setup task.
type TaskStatus string

const (
	TaskToDo   TaskStatus = "todo"
	TaskDone   TaskStatus = "done"
	TaskFailed TaskStatus = "failed"
	TaskInfo   TaskStatus = "info"
)

// Task identifies one of the dashboard tasks.
type Task string

const (
	TaskSettings         Task = "settings"
	TaskQuizSelection    Task = "quiz_selection"
	TaskPanelists        Task = "panelist_management"
	TaskContactPanelists Task = "contact_panelists"
	TaskGenerateQuiz     Task = "generate_student_quiz"
)

// QuizType selects the grading and feedback policy of the generated student quiz.
type QuizType string

const (
	// QuizTypeFormative is ungraded with immediate feedback.
	QuizTypeFormative QuizType = "formative"
	// QuizTypeSummativeWithFeedback is graded with deferred feedback.
	QuizTypeSummativeWithFeedback QuizType = "summative_feedback"
	// QuizTypeSummativeWithoutFeedback is graded with no feedback at all.
	QuizTypeSummativeWithoutFeedback QuizType = "summative_nofeedback"
)

// Summative reports whether the quiz type contributes to the gradebook.
func (t QuizType) Summative() bool {
	return t == QuizTypeSummativeWithFeedback || t == QuizTypeSummativeWithoutFeedback
}

// Session is one concordance exercise.
type Session struct {
	ID                 int64     `json:"id"`
	CourseID           int64     `json:"course_id"`
	Name               string    `json:"name"`
	PanelCourseID      int64     `json:"panel_course_id"`
	OriginQuizID       *int64    `json:"origin_quiz_id,omitempty"`
	PanelQuizID        *int64    `json:"panel_quiz_id,omitempty"`
	StudentQuizID      *int64    `json:"student_quiz_id,omitempty"`
	DescriptionPanel   string    `json:"description_panelist"`
	DescriptionStudent string    `json:"description_student"`
	Phase              Phase     `json:"phase"`
	CreatedAt          time.Time `json:"created_at"`
}

// Panelist is one expert reviewer attached to a session.
type Panelist struct {
	ID         int64  `json:"id"`
	SessionID  int64  `json:"session_id"`
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
	Email      string `json:"email"`
	Biography  string `json:"biography"`
	EmailsSent int    `json:"emails_sent"`
	UserID     *int64 `json:"user_id,omitempty"` // shadow host account, nil until materialized
}

// FullName returns the panelist's display name.
func (p Panelist) FullName() string {
	return p.FirstName + " " + p.LastName
}

// StudentQuizSelection is the instructor's input for generating the student quiz.
type StudentQuizSelection struct {
	// QuestionsToInclude holds panel-quiz slot numbers in the order they
	// should appear in the student quiz (new slot = index + 1).
	QuestionsToInclude []int `json:"questions_to_include"`
	// PanelistsToInclude holds panelist ids whose attempts contribute.
	PanelistsToInclude []int64  `json:"panelists_to_include"`
	QuizType           QuizType `json:"quiz_type"`
	Name               string   `json:"name,omitempty"`
	IncludeBiography   bool     `json:"include_biography"`
}

// SlotMapping returns new-slot -> original-slot, numbering from 1.
func (s StudentQuizSelection) SlotMapping() map[int]int {
	m := make(map[int]int, len(s.QuestionsToInclude))
	for i, old := range s.QuestionsToInclude {
		m[i+1] = old
	}
	return m
}

// HasQuestions reports whether any question was selected.
func (s StudentQuizSelection) HasQuestions() bool {
	return len(s.QuestionsToInclude) > 0
}

// IncludesPanelist reports whether the panelist id was selected.
func (s StudentQuizSelection) IncludesPanelist(id int64) bool {
	for _, p := range s.PanelistsToInclude {
		if p == id {
			return true
		}
	}
	return false
}

// TaskState pairs a dashboard task with its computed status.
type TaskState struct {
	Task   Task       `json:"task"`
	Status TaskStatus `json:"status"`
	Notice string     `json:"notice,omitempty"`
}

// Event is a domain audit event.
type Event struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	ObjectID      int64     `json:"object_id"`
	UserID        int64     `json:"user_id"`
	RelatedUserID int64     `json:"related_user_id,omitempty"`
	Snapshot      string    `json:"snapshot,omitempty"` // JSON snapshot of prior state
	CreatedAt     time.Time `json:"created_at"`
}

// Event type names recorded by this module.
const (
	EventPhaseSwitched  = "phase_switched"
	EventEmailSent      = "email_sent"
	EventModuleCreated  = "module_created"
	EventQuestionEdited = "question_edited"
)
