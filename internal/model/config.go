package model

// ServiceConfig holds runtime parameters set via CLI flags.
type ServiceConfig struct {
	PanelCategory string  // course category the panel courses are created in
	PanelistRole  string  // role shadow accounts get on the panel course
	MaxGrade      float64 // maximum grade of summative student quizzes
	Lang          string  // default interface language
	SyncDeletion  bool    // delete host records immediately instead of marking
	QuizBaseURL   string  // public URL prefix panelists use to reach quizzes
}
