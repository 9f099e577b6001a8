package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/StudiUM/concordance/internal/aggregate"
	"github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/mailer"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/phase"
	"github.com/StudiUM/concordance/internal/qimport"
	"github.com/StudiUM/concordance/internal/quizdup"
	"github.com/StudiUM/concordance/internal/roster"
	"github.com/StudiUM/concordance/internal/store"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testServer struct {
	store  *store.Store
	server *httptest.Server
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := model.ServiceConfig{
		PanelCategory: "cat",
		PanelistRole:  model.RoleStudentDefault,
		MaxGrade:      100,
		SyncDeletion:  true,
		QuizBaseURL:   "http://moodle.example.test",
	}
	quizzes := quizdup.New(s, qimport.New(s), aggregate.New(s), cfg)
	h := New(s, phase.New(s), quizzes, roster.New(s, cfg), mailer.New(s, mailer.LogMailer{}, cfg), cfg)
	auth := NewAuth("test-secret")

	r := chi.NewRouter()
	r.Use(auth.WithAuth)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := auth.SignToken(model.Actor{UserID: 1, FirstName: "Iris", LastName: "Teacher"}, time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	return &testServer{store: s, server: srv, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+ts.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"course_id":            1,
		"name":                 "Sepsis cases",
		"description_panelist": "<p>panel</p>",
		"description_student":  "<p>student</p>",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	sess := decodeBody[model.Session](t, resp)
	if sess.PanelCourseID == 0 {
		t.Error("expected a panel course")
	}

	resp = ts.do(t, http.MethodGet, "/api/sessions/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: status %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/sessions/1/phase", map[string]string{"phase": "panelists"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("switch phase: status %d", resp.StatusCode)
	}
	updated := decodeBody[model.Session](t, resp)
	if updated.Phase != model.PhasePanelists {
		t.Errorf("phase = %q, want panelists", updated.Phase)
	}

	resp = ts.do(t, http.MethodGet, "/api/sessions/1/dashboard", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: status %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodDelete, "/api/sessions/1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete session: status %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/api/sessions/1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestPanelistRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"course_id": 1, "name": "s"})

	resp := ts.do(t, http.MethodPost, "/api/sessions/1/panelists", map[string]string{
		"firstname": "Ada", "lastname": "Lovelace", "email": "ada@example.test",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create panelist: status %d", resp.StatusCode)
	}
	p := decodeBody[model.Panelist](t, resp)
	if p.UserID == nil {
		t.Error("expected shadow account for panelist")
	}

	resp = ts.do(t, http.MethodPost, "/api/sessions/1/panelists", map[string]string{"firstname": "No", "lastname": "Mail"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing email should be rejected, got %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/api/sessions/1/panelists", nil)
	panelists := decodeBody[[]model.Panelist](t, resp)
	if len(panelists) != 1 {
		t.Fatalf("expected 1 panelist, got %d", len(panelists))
	}

	resp = ts.do(t, http.MethodDelete, "/api/sessions/1/panelists/1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete panelist: status %d", resp.StatusCode)
	}
}

func TestPublishPanelQuizWithoutOriginIsNotice(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"course_id": 1, "name": "s"})

	resp := ts.do(t, http.MethodPost, "/api/sessions/1/panel-quiz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish panel quiz: status %d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["panel_quiz_id"] != nil {
		t.Errorf("expected null quiz id, got %v", body["panel_quiz_id"])
	}
	if body["notice"] == "" {
		t.Error("expected a notice explaining the missing origin quiz")
	}
}

func TestMessagesRequirePanelQuiz(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"course_id": 1, "name": "s"})

	resp := ts.do(t, http.MethodPost, "/api/sessions/1/messages", map[string]any{
		"panelist_ids": []int64{}, "subject": "s", "message": "m",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 before the panel quiz exists, got %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.server.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
}
