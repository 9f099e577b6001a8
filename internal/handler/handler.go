// Package handler exposes the session workflow over a JSON API. The host
// platform authenticates instructors and hands them a token; every mutating
// route runs on behalf of that actor.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/StudiUM/concordance/internal/mailer"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/phase"
	"github.com/StudiUM/concordance/internal/qimport"
	"github.com/StudiUM/concordance/internal/quizdup"
	"github.com/StudiUM/concordance/internal/roster"
	"github.com/StudiUM/concordance/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	phases  *phase.Machine
	quizzes *quizdup.Manager
	roster  *roster.Manager
	mail    *mailer.Service
	config  model.ServiceConfig
}

// New creates a new Handler.
func New(s *store.Store, ph *phase.Machine, qz *quizdup.Manager, ro *roster.Manager,
	ml *mailer.Service, cfg model.ServiceConfig) *Handler {
	return &Handler{store: s, phases: ph, quizzes: qz, roster: ro, mail: ml, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(RequireAuth)
		r.Post("/", h.handleCreateSession)
		r.Get("/", h.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Put("/", h.handleUpdateSession)
			r.Delete("/", h.handleDeleteSession)
			r.Get("/dashboard", h.handleDashboard)
			r.Post("/phase", h.handleSwitchPhase)
			r.Post("/panel-quiz", h.handlePublishPanelQuiz)
			r.Post("/student-quiz", h.handlePublishStudentQuiz)
			r.Post("/messages", h.handleSendMessages)
			r.Post("/panelists", h.handleCreatePanelist)
			r.Get("/panelists", h.handleListPanelists)
			r.Put("/panelists/{panelistID}", h.handleUpdatePanelist)
			r.Delete("/panelists/{panelistID}", h.handleDeletePanelist)
		})
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return model.Session{}, false
	}
	sess, err := h.store.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return model.Session{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return model.Session{}, false
	}
	return sess, true
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CourseID           int64  `json:"course_id"`
		Name               string `json:"name"`
		DescriptionPanel   string `json:"description_panelist"`
		DescriptionStudent string `json:"description_student"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CourseID == 0 || req.Name == "" {
		http.Error(w, "course_id and name are required", http.StatusBadRequest)
		return
	}
	sess, err := h.store.CreateSession(model.Session{
		CourseID:           req.CourseID,
		Name:               req.Name,
		DescriptionPanel:   req.DescriptionPanel,
		DescriptionStudent: req.DescriptionStudent,
	}, h.config.PanelCategory)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Name               *string `json:"name"`
		OriginQuizID       *int64  `json:"origin_quiz_id"`
		DescriptionPanel   *string `json:"description_panelist"`
		DescriptionStudent *string `json:"description_student"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != nil {
		sess.Name = *req.Name
	}
	if req.OriginQuizID != nil {
		sess.OriginQuizID = req.OriginQuizID
	}
	if req.DescriptionPanel != nil {
		sess.DescriptionPanel = *req.DescriptionPanel
	}
	if req.DescriptionStudent != nil {
		sess.DescriptionStudent = *req.DescriptionStudent
	}
	if err := h.store.UpdateSession(sess); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteSession(sess.ID, h.config.SyncDeletion); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	tasks, err := h.phases.Dashboard(r.Context(), sess)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"phase": sess.Phase,
		"tasks": tasks,
	})
}

func (h *Handler) handleSwitchPhase(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	actor := model.ActorFromContext(r.Context())
	var req struct {
		Phase model.Phase `json:"phase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	updated, err := h.phases.Switch(r.Context(), *actor, sess.ID, req.Phase)
	if errors.Is(err, phase.ErrUnknownPhase) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// handlePublishPanelQuiz regenerates the panel quiz. A session without an
// origin quiz is not an error: the response carries a null quiz id so the
// wizard can show the missing prerequisite instead of failing.
func (h *Handler) handlePublishPanelQuiz(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	actor := model.ActorFromContext(r.Context())
	quizID, err := h.quizzes.PublishPanelQuiz(r.Context(), *actor, sess)
	if errors.Is(err, quizdup.ErrPermissionDenied) {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]any{"panel_quiz_id": quizID}
	if quizID == nil {
		resp["notice"] = "no origin quiz selected"
	} else if err := h.roster.EnsureUsers(sess); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handlePublishStudentQuiz generates the student quiz from the instructor's
// selection. Missing prerequisites come back as a null quiz id with a
// notice; a broken question transfer is a bad gateway, the host must not
// keep a half-filled quiz.
func (h *Handler) handlePublishStudentQuiz(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	actor := model.ActorFromContext(r.Context())
	var selection model.StudentQuizSelection
	if err := json.NewDecoder(r.Body).Decode(&selection); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	quizID, err := h.quizzes.PublishStudentQuiz(r.Context(), *actor, sess, selection)
	switch {
	case errors.Is(err, quizdup.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, qimport.ErrImportFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]any{"student_quiz_id": quizID}
	if quizID == nil {
		resp["notice"] = "panel quiz, panel attempts and a question selection are required"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSendMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	actor := model.ActorFromContext(r.Context())
	var req struct {
		PanelistIDs []int64 `json:"panelist_ids"`
		Subject     string  `json:"subject"`
		Message     string  `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sent, err := h.mail.SendMessageToPanelists(r.Context(), *actor, sess, req.PanelistIDs, req.Subject, req.Message)
	if errors.Is(err, mailer.ErrNoPanelQuiz) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

func (h *Handler) handleCreatePanelist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p model.Panelist
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if p.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	created, err := h.roster.Create(sess, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListPanelists(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	panelists, err := h.store.ListPanelists(sess.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, panelists)
}

func (h *Handler) panelist(w http.ResponseWriter, r *http.Request, sess model.Session) (model.Panelist, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "panelistID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid panelist ID", http.StatusBadRequest)
		return model.Panelist{}, false
	}
	p, err := h.store.GetPanelist(id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.SessionID != sess.ID) {
		http.Error(w, "panelist not found", http.StatusNotFound)
		return model.Panelist{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return model.Panelist{}, false
	}
	return p, true
}

func (h *Handler) handleUpdatePanelist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, ok := h.panelist(w, r, sess)
	if !ok {
		return
	}
	var req struct {
		FirstName *string `json:"firstname"`
		LastName  *string `json:"lastname"`
		Email     *string `json:"email"`
		Biography *string `json:"biography"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirstName != nil {
		p.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		p.LastName = *req.LastName
	}
	if req.Email != nil {
		p.Email = *req.Email
	}
	if req.Biography != nil {
		p.Biography = *req.Biography
	}
	if err := h.roster.Update(sess, p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	updated, err := h.store.GetPanelist(p.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeletePanelist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	p, ok := h.panelist(w, r, sess)
	if !ok {
		return
	}
	if err := h.roster.Delete(p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
