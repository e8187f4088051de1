package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/chat"
	"aichat/pkg/generation"
	"aichat/pkg/store"

	"github.com/gorilla/websocket"
)

type scriptedModel struct {
	events []ai.Event
}

func (m *scriptedModel) Provider() ai.ProviderID { return ai.ProviderOpenAI }
func (m *scriptedModel) ModelID() string         { return "gpt-4.1" }

func (m *scriptedModel) Stream(ctx context.Context, req ai.Request) (ai.StepStream, error) {
	return &scriptedStep{events: m.events}, nil
}

type scriptedStep struct {
	events []ai.Event
	idx    int
}

func (s *scriptedStep) Next() bool {
	if s.idx >= len(s.events) {
		return false
	}
	s.idx++
	return true
}

func (s *scriptedStep) Event() ai.Event { return s.events[s.idx-1] }
func (s *scriptedStep) Err() error      { return nil }
func (s *scriptedStep) Close() error    { return nil }

type staticKeys map[ai.ProviderID]string

func (k staticKeys) GetAPIKeys(context.Context, string) (map[ai.ProviderID]string, error) {
	return k, nil
}

type testEnv struct {
	server     *Server
	http       *httptest.Server
	hub        *Hub
	store      *store.Store
	controller *generation.Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	model := &scriptedModel{events: []ai.Event{
		ai.TextDelta{Text: "Hello"},
		ai.TextDelta{Text: " there"},
		ai.StepFinish{Reason: ai.FinishStop},
	}}
	registry := ai.NewRegistry()
	registry.Register(ai.ProviderOpenAI, func(cfg ai.ProviderConfig) (ai.LanguageModel, error) {
		return model, nil
	})

	catalog := ai.DefaultCatalog()
	hub := NewHub()
	controller := generation.NewController(db.Generations())
	generator := chat.NewGenerator(
		catalog,
		ai.NewAdapter(registry, catalog),
		controller,
		NewBroadcastUpdater(db, hub),
		staticKeys{ai.ProviderOpenAI: "sk-test"},
	)

	srv := New("127.0.0.1:0", generator, catalog, db, hub)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, http: ts, hub: hub, store: db, controller: controller}
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

const generateBody = `{"user_id":"u1","chat_id":"c1","message_id":"m1","model_id":"gpt-4.1","prompt":"hi"}`

func TestGenerate_Sync(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/generate", generateBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["content"] != "Hello there" || body["message_id"] != "m1" {
		t.Fatalf("Unexpected body: %v", body)
	}

	msg, err := env.store.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage() failed: %v", err)
	}
	if msg.Content != "Hello there" || msg.ChatID != "c1" {
		t.Fatalf("Unexpected stored message: %#v", msg)
	}
}

func TestGenerate_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"user_id":`, "invalid request body"},
		{"unknown field", `{"user_id":"u","bogus":1}`, "invalid request body"},
		{"missing fields", `{"user_id":"u","prompt":"hi"}`, "chat_id, message_id, model_id"},
		{"bad history role", `{"user_id":"u","chat_id":"c","message_id":"m","model_id":"gpt-4.1","history":[{"role":"tool","content":"x"}]}`, "invalid role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/api/generate", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", resp.StatusCode)
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.want) {
				t.Fatalf("Expected error containing %q, got %v", tt.want, body)
			}
		})
	}
}

func TestGenerate_AsyncAndMessageEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/generate?async=true", generateBody)
	if resp.StatusCode != http.StatusAccepted || body["message_id"] != "m1" {
		t.Fatalf("Expected 202 with message id, got %d: %v", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	resp, body = env.get(t, "/api/messages/m1")
	if resp.StatusCode != http.StatusOK || body["content"] != "Hello there" {
		t.Fatalf("Expected stored message, got %d: %v", resp.StatusCode, body)
	}

	resp, _ = env.get(t, "/api/messages/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown message, got %d", resp.StatusCode)
	}
}

func TestCancelAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, body := env.post(t, "/api/messages/m1/cancel", "")
	if resp.StatusCode != http.StatusOK || body["cancelled"] != false {
		t.Fatalf("Expected no-op cancel, got %d: %v", resp.StatusCode, body)
	}

	_, body = env.get(t, "/api/messages/m1/status")
	if body["generating"] != false {
		t.Fatalf("Expected not generating, got %v", body)
	}

	if err := env.controller.Create(ctx, "m1", "u1"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	resp, body = env.post(t, "/api/messages/m1/cancel", "")
	if resp.StatusCode != http.StatusAccepted || body["cancelled"] != true {
		t.Fatalf("Expected accepted cancel, got %d: %v", resp.StatusCode, body)
	}

	_, body = env.get(t, "/api/messages/m1/status")
	if body["generating"] != true || body["cancelled"] != true {
		t.Fatalf("Expected cancelled generation, got %v", body)
	}
}

func TestModels(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.get(t, "/api/models")
	providers, _ := body["providers"].([]any)
	if len(providers) != 5 {
		t.Fatalf("Expected 5 providers, got %d", len(providers))
	}

	_, body = env.get(t, "/api/models?provider=groq")
	providers, _ = body["providers"].([]any)
	if len(providers) != 1 {
		t.Fatalf("Expected 1 provider, got %d", len(providers))
	}
	groq := providers[0].(map[string]any)
	if groq["id"] != "groq" || groq["key_url"] == "" {
		t.Fatalf("Unexpected provider entry: %v", groq)
	}
	if models, _ := groq["models"].([]any); len(models) == 0 {
		t.Fatal("Expected groq models")
	}

	resp, _ := env.get(t, "/api/models?provider=openrouter")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown provider, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("Unexpected health response %d: %v", resp.StatusCode, body)
	}
	build, ok := body["build"].(map[string]any)
	if !ok || build["platform"] == "" || build["go_version"] == "" {
		t.Fatalf("Expected build info, got %v", body["build"])
	}
}

func TestRouting_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.http.URL+"/api/models", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.http.URL + "/api/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestGenerate_RetryAfterErrorClearsType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	errText := "Rate limited"
	if err := env.store.UpdateMessage(ctx, "c1", "m1", chat.MessagePatch{
		Content: &errText,
		Sources: []ai.Source{{Type: ai.SourceTypeURL, URL: "https://stale.test"}},
		Type:    chat.MessageTypeError,
	}); err != nil {
		t.Fatalf("UpdateMessage() failed: %v", err)
	}

	if resp, body := env.post(t, "/api/generate", generateBody); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}

	resp, body := env.get(t, "/api/messages/m1")
	if resp.StatusCode != http.StatusOK || body["content"] != "Hello there" {
		t.Fatalf("Expected new content, got %d: %v", resp.StatusCode, body)
	}
	if _, ok := body["type"]; ok {
		t.Fatalf("Expected normal message type, got %v", body["type"])
	}
	if _, ok := body["sources"]; ok {
		t.Fatalf("Expected stale sources cleared, got %v", body["sources"])
	}
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/chats/c1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers("c1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.post(t, "/api/generate", generateBody)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var contents []string
	for len(contents) < 3 {
		var u Update
		if err := conn.ReadJSON(&u); err != nil {
			t.Fatalf("ReadJSON() failed after %v: %v", contents, err)
		}
		if u.MessageID != "m1" || u.Content == nil {
			t.Fatalf("Unexpected update: %#v", u)
		}
		contents = append(contents, *u.Content)
	}
	if contents[0] != "Hello" || contents[2] != "Hello there" {
		t.Fatalf("Unexpected update sequence: %v", contents)
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Publish("nobody", Update{MessageID: "m"})

	if hub.Subscribers("nobody") != 0 {
		t.Fatal("Expected no subscribers")
	}
}
