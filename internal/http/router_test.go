package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/steveyiyo/voxrelay/internal/config"
	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/pcm"
	"github.com/steveyiyo/voxrelay/internal/core/session"
	"github.com/steveyiyo/voxrelay/internal/metrics"
	"github.com/steveyiyo/voxrelay/internal/repo/memory"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeGenerator struct {
	reply types.Reply
	err   error
	block chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, _, _ string) (types.Reply, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return types.Reply{}, ctx.Err()
		}
	}
	return g.reply, g.err
}

type fakeSession struct {
	mu     sync.Mutex
	chunks int
}

func (s *fakeSession) SendRealtimeInput(pcm.EncodedChunk) error {
	s.mu.Lock()
	s.chunks++
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

type fakeConnector struct {
	mu      sync.Mutex
	configs []live.SessionConfig
	session *fakeSession
}

func (c *fakeConnector) Connect(_ context.Context, cfg live.SessionConfig, _ live.Callbacks) (live.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, cfg)
	c.session = &fakeSession{}
	return c.session, nil
}

func (c *fakeConnector) current() *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

type testEnv struct {
	router    *gin.Engine
	sessions  *session.Service
	connector *fakeConnector
}

func newEnv(t *testing.T, gen *fakeGenerator, apiKey string) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	conn := &fakeConnector{}
	deps := session.Deps{
		APIKey:       apiKey,
		Connector:    conn,
		KV:           memory.NewKV(),
		Metrics:      m,
		Live:         live.SessionConfig{Model: "live-model", Voice: "Zephyr"},
		HistoryLimit: 50,
	}
	if gen != nil {
		deps.Generator = gen
	}
	svc := session.NewService(deps)
	t.Cleanup(svc.Shutdown)
	return &testEnv{
		router:    NewRouter(config.Defaults(), Deps{Sessions: svc, Metrics: m, Gatherer: reg}),
		sessions:  svc,
		connector: conn,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *testEnv) create(t *testing.T, body string) types.CreateSessionResp {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/sessions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body)
	}
	var resp types.CreateSessionResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create: decode: %v", err)
	}
	return resp
}

func TestCreateSession(t *testing.T) {
	env := newEnv(t, nil, "")
	resp := env.create(t, `{"voice":"Kore"}`)
	if !strings.HasPrefix(resp.SessionID, "sess_") {
		t.Errorf("session id = %q", resp.SessionID)
	}
	if want := "ws://localhost:8080/v1/stream?sess=" + resp.SessionID; resp.WSURL != want {
		t.Errorf("ws_url = %q, want %q", resp.WSURL, want)
	}
}

func TestCreateSessionEmptyBody(t *testing.T) {
	env := newEnv(t, nil, "")
	env.create(t, "")
}

func TestCreateSessionBadBody(t *testing.T) {
	env := newEnv(t, nil, "")
	if w := env.do(t, http.MethodPost, "/v1/sessions", "{"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSummary(t *testing.T) {
	env := newEnv(t, nil, "")
	id := env.create(t, "").SessionID

	w := env.do(t, http.MethodGet, "/v1/sessions/"+id+"/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var sum types.SummaryResp
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.SessionID != id || sum.State != "idle" || sum.Messages != 0 {
		t.Errorf("summary = %+v", sum)
	}

	if w := env.do(t, http.MethodGet, "/v1/sessions/nope/summary", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newEnv(t, nil, "")
	id := env.create(t, "").SessionID
	if w := env.do(t, http.MethodDelete, "/v1/sessions/"+id, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/v1/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestPromptAndHistory(t *testing.T) {
	env := newEnv(t, &fakeGenerator{reply: types.Reply{Text: "42"}}, "key")
	id := env.create(t, "").SessionID

	w := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/prompt", `{"mode":"thinking","text":"meaning of life?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("prompt status = %d, body %s", w.Code, w.Body)
	}
	var reply types.Message
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Role != types.RoleAssistant || reply.Text != "42" {
		t.Errorf("reply = %+v", reply)
	}

	msgs := listMessages(t, env, id)
	if len(msgs) != 2 || msgs[0].Role != types.RoleUser || msgs[1].ID != reply.ID {
		t.Fatalf("history = %+v", msgs)
	}

	path := "/v1/sessions/" + id + "/messages/" + msgs[0].ID
	if w := env.do(t, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete message status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
	if got := listMessages(t, env, id); len(got) != 1 {
		t.Errorf("after delete: %d messages, want 1", len(got))
	}

	if w := env.do(t, http.MethodDelete, "/v1/sessions/"+id+"/messages", ""); w.Code != http.StatusNoContent {
		t.Errorf("clear status = %d", w.Code)
	}
	if got := listMessages(t, env, id); len(got) != 0 {
		t.Errorf("after clear: %d messages", len(got))
	}
}

func TestPromptFailureReturnsFallback(t *testing.T) {
	env := newEnv(t, &fakeGenerator{err: errors.New("boom")}, "key")
	id := env.create(t, "").SessionID

	w := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/prompt", `{"mode":"search","text":"news"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var reply types.Message
	_ = json.Unmarshal(w.Body.Bytes(), &reply)
	if reply.Role != types.RoleAssistant || reply.Text == "" {
		t.Errorf("fallback reply = %+v", reply)
	}
}

func TestPromptErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		body string
		want int
	}{
		{"empty text", &fakeGenerator{}, `{"mode":"thinking","text":"  "}`, http.StatusBadRequest},
		{"unknown mode", &fakeGenerator{}, `{"mode":"poetry","text":"hi"}`, http.StatusBadRequest},
		{"bad json", &fakeGenerator{}, `{`, http.StatusBadRequest},
		{"no generator", nil, `{"mode":"image","text":"a cat"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, tt.gen, "")
			id := env.create(t, "").SessionID
			if w := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/prompt", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestPromptBusy(t *testing.T) {
	gen := &fakeGenerator{reply: types.Reply{Text: "done"}, block: make(chan struct{})}
	env := newEnv(t, gen, "key")
	id := env.create(t, "").SessionID
	conv, _ := env.sessions.Get(id)

	done := make(chan int, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/v1/sessions/"+id+"/prompt", `{"mode":"thinking","text":"slow"}`).Code
	}()
	waitFor(t, func() bool { return len(conv.Messages()) == 1 })

	if w := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/prompt", `{"mode":"thinking","text":"again"}`); w.Code != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", w.Code)
	}
	close(gen.block)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first prompt status = %d", code)
	}
}

func TestMessagesUnknownSession(t *testing.T) {
	env := newEnv(t, nil, "")
	if w := env.do(t, http.MethodGet, "/v1/sessions/nope/messages", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t, nil, "")
	if w := env.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
	env.create(t, "")
	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "voxrelay_http_requests_total") {
		t.Error("metrics output lacks voxrelay_http_requests_total")
	}
}

func TestStreamUnknownSession(t *testing.T) {
	env := newEnv(t, nil, "")
	if w := env.do(t, http.MethodGet, "/v1/stream?sess=nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v1/stream", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing sess status = %d, want 400", w.Code)
	}
}

func TestStreamVoiceSession(t *testing.T) {
	env := newEnv(t, nil, "key")
	id := env.create(t, `{"voice":"Puck"}`).SessionID
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, srv, id)
	defer conn.Close()
	readUntil(t, conn, "hello")

	send(t, conn, `{"type":"start"}`)
	readUntil(t, conn, "mic_request")
	send(t, conn, `{"type":"mic","granted":true}`)
	waitState(t, conn, "active")

	env.connector.mu.Lock()
	voice := env.connector.configs[0].Voice
	env.connector.mu.Unlock()
	if voice != "Puck" {
		t.Errorf("connect voice = %q, want Puck", voice)
	}

	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(float64(i)/10))
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, float32LE(samples)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return env.connector.current().sent() == 1 })

	send(t, conn, `{"type":"stop"}`)
	waitState(t, conn, "idle")

	conv, _ := env.sessions.Get(id)
	if sum := conv.Summary(); sum.FramesSent != 1 {
		t.Errorf("frames sent = %d, want 1", sum.FramesSent)
	}
}

func TestStreamStartWithoutKey(t *testing.T) {
	env := newEnv(t, nil, "")
	id := env.create(t, "").SessionID
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, srv, id)
	defer conn.Close()
	readUntil(t, conn, "hello")
	send(t, conn, `{"type":"start"}`)
	ev := readUntil(t, conn, "notice")
	if ev.Notice == nil || ev.Notice.Kind != "error" {
		t.Errorf("notice = %+v", ev.Notice)
	}
}

func TestStreamMicDenied(t *testing.T) {
	env := newEnv(t, nil, "key")
	id := env.create(t, "").SessionID
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, srv, id)
	defer conn.Close()
	readUntil(t, conn, "hello")
	send(t, conn, `{"type":"start"}`)
	readUntil(t, conn, "mic_request")
	send(t, conn, `{"type":"mic","granted":false}`)

	ev := readUntil(t, conn, "notice")
	if ev.Notice == nil || !strings.Contains(ev.Notice.Text, "denied") {
		t.Errorf("notice = %+v", ev.Notice)
	}
	env.connector.mu.Lock()
	n := len(env.connector.configs)
	env.connector.mu.Unlock()
	if n != 0 {
		t.Errorf("connect called %d times after denial", n)
	}
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?sess=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("send %s: %v", msg, err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) types.Event {
	t.Helper()
	return readMatch(t, conn, func(ev types.Event) bool { return ev.Type == typ }, typ)
}

func waitState(t *testing.T, conn *websocket.Conn, state string) {
	t.Helper()
	readMatch(t, conn, func(ev types.Event) bool { return ev.Type == "state" && ev.State == state }, "state "+state)
}

func readMatch(t *testing.T, conn *websocket.Conn, match func(types.Event) bool, what string) types.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(ev) {
			return ev
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func listMessages(t *testing.T, env *testEnv, id string) []types.Message {
	t.Helper()
	w := env.do(t, http.MethodGet, "/v1/sessions/"+id+"/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp types.MessagesResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Messages
}

func float32LE(samples []float32) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		b := math.Float32bits(s)
		buf.Write([]byte{byte(b), byte(b >> 8), byte(b >> 16), byte(b >> 24)})
	}
	return buf.Bytes()
}
