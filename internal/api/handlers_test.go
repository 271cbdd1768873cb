package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"codepilot/internal/auth"
	"codepilot/internal/config"
	"codepilot/internal/service/assistant"
	"codepilot/internal/service/metering"
	"codepilot/internal/service/workspace"
	"codepilot/internal/storage"
	"codepilot/internal/worker"
)

const identityHeader = "X-Forwarded-User"

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAnonymousRequests(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSONRequest(t, router, http.MethodGet, "/api/projects", nil, nil)
	assertStatus(t, rec, http.StatusUnauthorized)
	var body struct {
		Message string `json:"message"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Message != "Unauthorized" {
		t.Fatalf("unexpected message %q", body.Message)
	}

	rec = doJSONRequest(t, router, http.MethodGet, "/api/pricing", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty plan list, got %s", rec.Body.String())
	}
}

func TestCurrentUserIsCreatedOnFirstSight(t *testing.T) {
	router, _ := newTestServer(t)

	headers := map[string]string{identityHeader: "u-1", "X-Forwarded-Email": "ada@example.com"}
	rec := doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var user struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		Plan        string `json:"plan"`
		TokensUsed  int    `json:"tokensUsed"`
		TokensLimit int    `json:"tokensLimit"`
	}
	decodeJSON(t, rec.Body.Bytes(), &user)
	if user.ID != "u-1" || user.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Plan != "free" || user.TokensUsed != 0 || user.TokensLimit != 1000 {
		t.Fatalf("unexpected allowance %+v", user)
	}
}

func TestProjectRoutes(t *testing.T) {
	router, _ := newTestServer(t)
	owner := asUser("owner")
	other := asUser("other")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/projects", map[string]any{"name": "no language"}, owner)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = doJSONRequest(t, router, http.MethodPost, "/api/projects", map[string]any{
		"name":     "todo app",
		"language": "javascript",
		"files":    map[string]string{"index.js": "console.log(1)"},
	}, owner)
	assertStatus(t, rec, http.StatusCreated)
	var created struct {
		ID       int64           `json:"id"`
		UserID   string          `json:"userId"`
		Files    json.RawMessage `json:"files"`
		IsPublic bool            `json:"isPublic"`
	}
	decodeJSON(t, rec.Body.Bytes(), &created)
	if created.ID <= 0 || created.UserID != "owner" || created.IsPublic {
		t.Fatalf("unexpected project %+v", created)
	}
	projectPath := fmt.Sprintf("/api/projects/%d", created.ID)

	rec = doJSONRequest(t, router, http.MethodGet, "/api/projects", nil, owner)
	assertStatus(t, rec, http.StatusOK)
	var listed []struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec.Body.Bytes(), &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	rec = doJSONRequest(t, router, http.MethodGet, projectPath, nil, other)
	assertStatus(t, rec, http.StatusForbidden)
	assertMessage(t, rec, "Access denied")

	rec = doJSONRequest(t, router, http.MethodPatch, projectPath, map[string]any{"isPublic": true}, other)
	assertStatus(t, rec, http.StatusForbidden)

	rec = doJSONRequest(t, router, http.MethodPatch, projectPath, map[string]any{"isPublic": true, "description": "shared"}, owner)
	assertStatus(t, rec, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodGet, projectPath, nil, other)
	assertStatus(t, rec, http.StatusOK)
	var viewed struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	decodeJSON(t, rec.Body.Bytes(), &viewed)
	if viewed.Name != "todo app" || viewed.Description != "shared" {
		t.Fatalf("unexpected project after update %+v", viewed)
	}

	rec = doJSONRequest(t, router, http.MethodDelete, projectPath, nil, other)
	assertStatus(t, rec, http.StatusForbidden)
	rec = doJSONRequest(t, router, http.MethodDelete, projectPath, nil, owner)
	assertStatus(t, rec, http.StatusNoContent)

	rec = doJSONRequest(t, router, http.MethodGet, projectPath, nil, owner)
	assertStatus(t, rec, http.StatusNotFound)
	rec = doJSONRequest(t, router, http.MethodDelete, projectPath, nil, owner)
	assertStatus(t, rec, http.StatusForbidden)
	rec = doJSONRequest(t, router, http.MethodGet, "/api/projects/abc", nil, owner)
	assertStatus(t, rec, http.StatusBadRequest)
}

type chatBody struct {
	Response        string   `json:"response"`
	Suggestions     []string `json:"suggestions"`
	CodeExample     string   `json:"codeExample"`
	TokensUsed      int      `json:"tokensUsed"`
	SessionID       int64    `json:"sessionId"`
	RemainingTokens int      `json:"remainingTokens"`
}

func TestChatDebitsAndRecordsSession(t *testing.T) {
	router, _ := newTestServer(t)
	headers := asUser("u-1")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "how do I create function handlers?",
	}, headers)
	assertStatus(t, rec, http.StatusOK)
	var body chatBody
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Response != "Here's how to create a function in javascript:" {
		t.Fatalf("unexpected response %q", body.Response)
	}
	if body.CodeExample == "" {
		t.Fatalf("expected a code example")
	}
	if body.TokensUsed != 90 || body.RemainingTokens != 910 || body.SessionID <= 0 {
		t.Fatalf("unexpected metering %+v", body)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{}, headers)
	assertStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.TokensUsed != 75 || body.RemainingTokens != 835 {
		t.Fatalf("unexpected fallback metering %+v", body)
	}

	rec = doJSONRequest(t, router, http.MethodGet, "/api/ai/sessions", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var sessions []struct {
		ID       int64 `json:"id"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		TokensUsed int `json:"tokensUsed"`
	}
	decodeJSON(t, rec.Body.Bytes(), &sessions)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != body.SessionID || sessions[0].TokensUsed != 75 {
		t.Fatalf("expected newest session first, got %+v", sessions[0])
	}
	first := sessions[1]
	if len(first.Messages) != 2 || first.Messages[0].Role != "user" || first.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected transcript %+v", first.Messages)
	}

	rec = doJSONRequest(t, router, http.MethodGet, fmt.Sprintf("/api/ai/sessions/%d", first.ID), nil, headers)
	assertStatus(t, rec, http.StatusOK)
	rec = doJSONRequest(t, router, http.MethodGet, fmt.Sprintf("/api/ai/sessions/%d", first.ID), nil, asUser("u-2"))
	assertStatus(t, rec, http.StatusNotFound)

	rec = doJSONRequest(t, router, http.MethodGet, "/api/user/stats", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var stats struct {
		TokensUsed   int    `json:"tokensUsed"`
		TokensLimit  int    `json:"tokensLimit"`
		ProjectCount int    `json:"projectCount"`
		SessionCount int    `json:"sessionCount"`
		Plan         string `json:"plan"`
	}
	decodeJSON(t, rec.Body.Bytes(), &stats)
	if stats.TokensUsed != 165 || stats.TokensLimit != 1000 || stats.SessionCount != 2 || stats.ProjectCount != 0 || stats.Plan != "free" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestChatRejectsExhaustedUser(t *testing.T) {
	router, db := newTestServer(t)
	headers := asUser("u-1")
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, headers), http.StatusOK)
	if _, err := db.Exec(`UPDATE users SET tokens_used = 1000 WHERE id = ?`, "u-1"); err != nil {
		t.Fatalf("exhaust user: %v", err)
	}

	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{"message": "hi"}, headers)
	assertStatus(t, rec, http.StatusTooManyRequests)
	var body struct {
		Message     string `json:"message"`
		TokensUsed  int    `json:"tokensUsed"`
		TokensLimit int    `json:"tokensLimit"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Message != "Token limit exceeded. Please upgrade your plan." || body.TokensUsed != 1000 || body.TokensLimit != 1000 {
		t.Fatalf("unexpected rejection %+v", body)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ai_sessions`).Scan(&count); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no sessions, got %d", count)
	}
}

func TestChatRequiresOwnedProject(t *testing.T) {
	router, db := newTestServer(t)
	owner := asUser("owner")
	other := asUser("other")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/projects", map[string]any{
		"name":     "private app",
		"language": "go",
	}, owner)
	assertStatus(t, rec, http.StatusCreated)
	var project struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec.Body.Bytes(), &project)
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, other), http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "hi", "projectId": project.ID,
	}, other)
	assertStatus(t, rec, http.StatusForbidden)
	assertMessage(t, rec, "Access denied")

	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai/chat/stream", map[string]any{
		"message": "hi", "projectId": project.ID,
	}, other)
	assertStatus(t, rec, http.StatusForbidden)
	if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected a JSON rejection, got %q", ct)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "hi", "projectId": 9999,
	}, other)
	assertStatus(t, rec, http.StatusNotFound)
	assertMessage(t, rec, "Project not found")

	var sessions, used int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ai_sessions`).Scan(&sessions); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if err := db.QueryRow(`SELECT tokens_used FROM users WHERE id = ?`, "other").Scan(&used); err != nil {
		t.Fatalf("read usage: %v", err)
	}
	if sessions != 0 || used != 0 {
		t.Fatalf("rejected chats must not be metered: sessions=%d tokensUsed=%d", sessions, used)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "hi", "projectId": project.ID,
	}, owner)
	assertStatus(t, rec, http.StatusOK)
	var linked int64
	if err := db.QueryRow(`SELECT project_id FROM ai_sessions WHERE user_id = ?`, "owner").Scan(&linked); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if linked != project.ID {
		t.Fatalf("expected session linked to project %d, got %d", project.ID, linked)
	}
}

func TestChatStreamEmitsChunksThenDone(t *testing.T) {
	router, _ := newTestServer(t)
	headers := asUser("u-1")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai/chat/stream", map[string]any{
		"message":  "why?",
		"language": "Python",
		"error":    "NameError: name 'x' is not defined",
	}, headers)
	assertStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(events))
	}
	if events[0].Name != "ack" {
		t.Fatalf("expected ack first, got %s", events[0].Name)
	}
	var ack struct {
		Message  string `json:"message"`
		Language string `json:"language"`
	}
	decodeJSON(t, []byte(events[0].Data), &ack)
	if ack.Message != "why?" || ack.Language != "python" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	last := events[len(events)-1]
	if last.Name != "done" {
		t.Fatalf("expected done last, got %s", last.Name)
	}
	var done chatBody
	decodeJSON(t, []byte(last.Data), &done)
	if done.TokensUsed != 80 || done.RemainingTokens != 920 || done.SessionID <= 0 {
		t.Fatalf("unexpected done payload %+v", done)
	}

	var streamed strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		if ev.Name != "stream" {
			t.Fatalf("expected stream event, got %s", ev.Name)
		}
		var chunk struct {
			Content string `json:"content"`
		}
		decodeJSON(t, []byte(ev.Data), &chunk)
		streamed.WriteString(chunk.Content)
	}
	if streamed.String() != done.Response {
		t.Fatalf("streamed text does not match response:\n%q\n%q", streamed.String(), done.Response)
	}
}

func TestChatStreamReportsQuotaAsErrorEvent(t *testing.T) {
	router, db := newTestServer(t)
	headers := asUser("u-1")
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, headers), http.StatusOK)
	if _, err := db.Exec(`UPDATE users SET tokens_used = 1200 WHERE id = ?`, "u-1"); err != nil {
		t.Fatalf("exhaust user: %v", err)
	}

	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai/chat/stream", map[string]any{"message": "hi"}, headers)
	assertStatus(t, rec, http.StatusOK)
	events := parseSSE(t, rec.Body.String())
	if len(events) != 2 || events[0].Name != "ack" || events[1].Name != "error" {
		t.Fatalf("unexpected events %+v", events)
	}
	var body struct {
		Status     int `json:"status"`
		TokensUsed int `json:"tokensUsed"`
	}
	decodeJSON(t, []byte(events[1].Data), &body)
	if body.Status != http.StatusTooManyRequests || body.TokensUsed != 1200 {
		t.Fatalf("unexpected error event %+v", body)
	}
}

type stubChat struct {
	err error
}

func (s stubChat) Chat(context.Context, string, metering.ChatRequest) (*metering.Result, error) {
	return nil, s.err
}

func TestChatFailureMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"busy", worker.ErrDispatcherBusy, http.StatusTooManyRequests, "server is busy, please retry"},
		{"closed", worker.ErrDispatcherClosed, http.StatusServiceUnavailable, "server is shutting down"},
		{"unknown user", fmt.Errorf("%w: %w", metering.ErrUserNotFound, workspace.ErrNotFound), http.StatusNotFound, "User not found"},
		{"store failure", fmt.Errorf("%w: %w", metering.ErrInternal, errors.New("disk full")), http.StatusInternalServerError, "Failed to process AI request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestServerWithChat(t, func(*workspace.Service) ChatRunner { return stubChat{err: tc.err} })
			rec := doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{"message": "hi"}, asUser("u-1"))
			assertStatus(t, rec, tc.status)
			assertMessage(t, rec, tc.message)
		})
	}
}

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, string, metering.ChatRequest) (*metering.Result, error) {
	panic("boom")
}

func TestChatHandlerPanicAnswers500(t *testing.T) {
	router, _ := newTestServerWithChat(t, func(*workspace.Service) ChatRunner {
		mgr := worker.NewManager(panickingHandler{}, worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, IdleTimeout: time.Minute})
		t.Cleanup(mgr.Close)
		return mgr
	})
	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai/chat", map[string]any{"message": "hi"}, asUser("u-1"))
	assertStatus(t, rec, http.StatusInternalServerError)
	assertMessage(t, rec, "Failed to process AI request")
}

func TestChatRejectsMalformedBody(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, "u-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestSnippetRoutes(t *testing.T) {
	router, _ := newTestServer(t)
	headers := asUser("u-1")
	want := assistant.NewDispatcher().SnippetNames(assistant.Python)

	rec := doJSONRequest(t, router, http.MethodGet, "/api/ai/snippets/python", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var names []string
	decodeJSON(t, rec.Body.Bytes(), &names)
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected names %v, want %v", names, want)
	}

	rec = doJSONRequest(t, router, http.MethodGet, "/api/ai/snippets/rust", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}

	wantText, _ := assistant.NewDispatcher().Snippet(assistant.Python, want[0])
	rec = doJSONRequest(t, router, http.MethodGet, "/api/ai/snippets/python/"+url.PathEscape(want[0]), nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var snippet struct {
		Snippet string `json:"snippet"`
	}
	decodeJSON(t, rec.Body.Bytes(), &snippet)
	if snippet.Snippet != wantText {
		t.Fatalf("unexpected snippet %q", snippet.Snippet)
	}

	rec = doJSONRequest(t, router, http.MethodGet, "/api/ai/snippets/python/nope", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec.Body.Bytes(), &snippet)
	if snippet.Snippet != "Snippet not found" {
		t.Fatalf("unexpected snippet %q", snippet.Snippet)
	}
}

func TestPricingAndSubscription(t *testing.T) {
	router, _ := newTestServer(t)
	headers := asUser("u-1")

	rec := doJSONRequest(t, router, http.MethodGet, "/api/user/subscription", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("expected null subscription, got %s", rec.Body.String())
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/admin/init-pricing", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	rec = doJSONRequest(t, router, http.MethodPost, "/api/admin/init-pricing", nil, headers)
	assertStatus(t, rec, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodGet, "/api/pricing", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	var plans []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Price       int    `json:"price"`
		TokensLimit int    `json:"tokensLimit"`
	}
	decodeJSON(t, rec.Body.Bytes(), &plans)
	if len(plans) != 3 || plans[1].Name != "Pro" || plans[1].Price != 599 {
		t.Fatalf("unexpected plans %+v", plans)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/pricing", map[string]any{
		"name": "Enterprise", "price": 4999, "tokensLimit": 200000, "features": []string{"SSO"},
	}, headers)
	assertStatus(t, rec, http.StatusCreated)
	var created struct {
		IsActive bool `json:"isActive"`
	}
	decodeJSON(t, rec.Body.Bytes(), &created)
	if !created.IsActive {
		t.Fatalf("expected new plan to be active")
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/pricing", map[string]any{"price": 1}, headers)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = doJSONRequest(t, router, http.MethodPost, "/api/user/subscription", map[string]any{"planId": plans[1].ID}, headers)
	assertStatus(t, rec, http.StatusCreated)
	rec = doJSONRequest(t, router, http.MethodPost, "/api/user/subscription", map[string]any{"planId": 9999}, headers)
	assertStatus(t, rec, http.StatusNotFound)

	rec = doJSONRequest(t, router, http.MethodGet, "/api/user/subscription", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var sub struct {
		PlanID int64  `json:"planId"`
		Status string `json:"status"`
	}
	decodeJSON(t, rec.Body.Bytes(), &sub)
	if sub.PlanID != plans[1].ID || sub.Status != "active" {
		t.Fatalf("unexpected subscription %+v", sub)
	}

	rec = doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var user struct {
		Plan        string `json:"plan"`
		TokensLimit int    `json:"tokensLimit"`
	}
	decodeJSON(t, rec.Body.Bytes(), &user)
	if user.Plan != "pro" || user.TokensLimit != 10000 {
		t.Fatalf("unexpected user after subscribe %+v", user)
	}
}

func TestTokenLoginAndLogout(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSONRequest(t, router, http.MethodPost, "/api/auth/token", nil, asUser("u-1"))
	assertStatus(t, rec, http.StatusCreated)
	var issued struct {
		AuthToken string `json:"authToken"`
		CSRFToken string `json:"csrfToken"`
	}
	decodeJSON(t, rec.Body.Bytes(), &issued)
	if issued.AuthToken == "" || issued.CSRFToken == "" {
		t.Fatalf("expected tokens, got %+v", issued)
	}
	bearer := map[string]string{"Authorization": "Bearer " + issued.AuthToken}

	rec = doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, bearer)
	assertStatus(t, rec, http.StatusOK)

	rec = doJSONRequest(t, router, http.MethodPost, "/api/auth/logout", nil, bearer)
	assertStatus(t, rec, http.StatusNoContent)

	rec = doJSONRequest(t, router, http.MethodGet, "/api/auth/user", nil, bearer)
	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestCookieAuthRequiresCSRFHeader(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSONRequest(t, router, http.MethodPost, "/api/auth/token", nil, asUser("u-1"))
	assertStatus(t, rec, http.StatusCreated)
	var authCookie, csrfCookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		switch ck.Name {
		case "auth_token":
			authCookie = ck
		case "csrf_token":
			csrfCookie = ck
		}
	}
	if authCookie == nil || csrfCookie == nil {
		t.Fatalf("expected auth and csrf cookies")
	}

	post := func(csrf string) *httptest.ResponseRecorder {
		body := bytes.NewBufferString(`{"name":"p","language":"go"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/projects", body)
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(authCookie)
		req.AddCookie(csrfCookie)
		if csrf != "" {
			req.Header.Set("X-CSRF-Token", csrf)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	assertStatus(t, post(""), http.StatusForbidden)
	assertStatus(t, post(csrfCookie.Value), http.StatusCreated)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/api/projects", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assertStatus(t, rec, http.StatusNoContent)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	return newTestServerWithChat(t, func(ws *workspace.Service) ChatRunner {
		gate := metering.NewGate(ws, assistant.NewDispatcher())
		mgr := worker.NewManager(gate, worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 16, IdleTimeout: time.Minute})
		t.Cleanup(mgr.Close)
		return mgr
	})
}

func newTestServerWithChat(t *testing.T, chat func(*workspace.Service) ChatRunner) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ws := workspace.NewService(db)
	authService := auth.NewService(db, nil, time.Hour, auth.WithIdentityHeaders(identityHeader, "X-Forwarded-Email", ws))
	handler := NewHandler(ws, assistant.NewDispatcher(), authService, chat(ws))

	router := gin.New()
	router.Use(RequestID())
	handler.RegisterRoutes(router)
	return router, db
}

func asUser(id string) map[string]string {
	return map[string]string{identityHeader: id}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, want %d, body: %s", rec.Code, want, rec.Body.String())
	}
}

func assertMessage(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Message != want {
		t.Fatalf("unexpected message %q, want %q", body.Message, want)
	}
}

type sseEvent struct {
	Name string
	Data string
}

func parseSSE(t *testing.T, raw string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		if block == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}
