package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/infrastructure/config"
	"github.com/ssrltools/beamcore/internal/infrastructure/logging"
	"github.com/ssrltools/beamcore/internal/leveling"
	"github.com/ssrltools/beamcore/internal/motor"
	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/shutter"
	"github.com/ssrltools/beamcore/internal/stage"
	"github.com/ssrltools/beamcore/internal/status"
)

// fakeShutter is a two-state shutter that settles immediately.
type fakeShutter struct {
	mu     sync.Mutex
	state  shutter.State
	setErr error
	motion error
}

func (f *fakeShutter) Name() string      { return "shutter" }
func (f *fakeShutter) Choices() []string { return []string{"open", "close"} }

func (f *fakeShutter) State(context.Context) (shutter.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeShutter) Set(_ context.Context, target string) (*status.Future, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	var want shutter.State
	switch target {
	case "open":
		want = shutter.StateOpen
	case "close":
		want = shutter.StateClosed
	default:
		return nil, fmt.Errorf("%w: %q", shutter.ErrInvalidTarget, target)
	}
	if f.motion != nil {
		return status.Failed(f.motion), nil
	}
	f.mu.Lock()
	f.state = want
	f.mu.Unlock()
	return status.Finished(), nil
}

// stageAxes maps stage axis names to channel setpoints.
var stageAxes = map[string]string{
	stage.AxisStageX: "SX",
	stage.AxisStageY: "SY",
	stage.AxisPlateX: "PX",
	stage.AxisPlateY: "PY",
	stage.AxisTheta:  "TH",
}

// testStage creates a hitp registry over simulated motors.
func testStage(t *testing.T) (*stage.Registry, *channel.Memory) {
	t.Helper()

	initial := make(map[string]float64, len(stageAxes))
	links := make(map[string]string, len(stageAxes))
	for _, sp := range stageAxes {
		initial[sp] = 0
		links[sp] = channel.Readback(sp)
	}
	mem := channel.NewMemory(initial, links)

	motors := make(map[string]stage.Motor, len(stageAxes))
	for name, sp := range stageAxes {
		motors[name] = motor.New(name, sp, mem)
	}
	return stage.NewRegistry(motors, "hitp", 10), mem
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server over a fake shutter and a simulated stage.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *channel.Memory) {
	t.Helper()

	reg, mem := testStage(t)
	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  testLogger(),
		Shutter: &fakeShutter{state: shutter.StateClosed},
		Samples: reg,
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	go srv.hub.Run(ctx)

	return srv, mem
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	reg, _ := testStage(t)
	if _, err := New(Deps{Shutter: &fakeShutter{}, Samples: reg}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger(), Samples: reg}); err == nil {
		t.Error("New() without shutter should fail")
	}
	if _, err := New(Deps{Logger: testLogger(), Shutter: &fakeShutter{}}); err == nil {
		t.Error("New() without samples should fail")
	}
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[map[string]string](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Health = func(context.Context) error { return fmt.Errorf("database closed") }
	})

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if resp := decode[map[string]string](t, w); resp["error"] != "database closed" {
		t.Errorf("health error = %q", resp["error"])
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/shutter", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Stage.Samples != 149 {
		t.Errorf("samples = %d, want 149", m.Stage.Samples)
	}
	if m.Stage.Busy {
		t.Error("idle stage reported busy")
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("goroutine count missing")
	}
}

// ─── Shutter ───────────────────────────────────────────────────────

func TestShutter_Get(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/shutter", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ShutterResponse](t, w)
	if resp.State != shutter.StateClosed || len(resp.Choices) != 2 {
		t.Errorf("shutter = %+v", resp)
	}
}

func TestShutter_SetOpen(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := do(t, srv, http.MethodPut, "/api/v1/shutter", `{"target":"open"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if resp := decode[ShutterResponse](t, w); resp.State != shutter.StateOpen {
		t.Errorf("state = %q, want open", resp.State)
	}
}

func TestShutter_SetErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		sh   *fakeShutter
		want int
	}{
		{"invalid target", `{"target":"ajar"}`, &fakeShutter{}, http.StatusBadRequest},
		{"missing target", `{}`, &fakeShutter{}, http.StatusBadRequest},
		{"unknown field", `{"target":"open","speed":2}`, &fakeShutter{}, http.StatusBadRequest},
		{"already moving", `{"target":"open"}`, &fakeShutter{setErr: shutter.ErrAlreadyMoving}, http.StatusConflict},
		{"motion failed", `{"target":"open"}`, &fakeShutter{motion: fmt.Errorf("%w: jammed", shutter.ErrMotion)}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, func(d *Deps) { d.Shutter = tt.sh })
			w := do(t, srv, http.MethodPut, "/api/v1/shutter", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

// ─── Samples and Stage ─────────────────────────────────────────────

func TestSamples_ListCenter(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/samples?select=center", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SamplesResponse](t, w)
	if resp.Selector != "center" {
		t.Errorf("selector = %q", resp.Selector)
	}
	for _, name := range stage.AxisNames {
		if got := resp.Positions[name]; len(got) != 1 || got[0] != 0 {
			t.Errorf("%s = %v, want [0]", name, got)
		}
	}
}

func TestSamples_ListErrors(t *testing.T) {
	srv, _ := testServer(t, nil)

	if w := do(t, srv, http.MethodGet, "/api/v1/samples?select=a,b", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid selector status = %d, want 400", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/v1/samples?select=9999", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown index status = %d, want 404", w.Code)
	}
}

func TestSamples_SaveReadsMotors(t *testing.T) {
	srv, mem := testServer(t, nil)
	mem.Set(channel.Readback("SX"), 1.5)
	mem.Set(channel.Readback("TH"), -2)

	w := do(t, srv, http.MethodPut, "/api/v1/samples/7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	resp := decode[SamplesResponse](t, w)
	if resp.Positions[stage.AxisStageX][0] != 1.5 || resp.Positions[stage.AxisTheta][0] != -2 {
		t.Errorf("saved = %v", resp.Positions)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/samples?select=7", "")
	if got := decode[SamplesResponse](t, w).Positions[stage.AxisStageX]; len(got) != 1 || got[0] != 1.5 {
		t.Errorf("listed stage_x = %v, want [1.5]", got)
	}
}

func TestSamples_SaveBadIndex(t *testing.T) {
	srv, _ := testServer(t, nil)

	if w := do(t, srv, http.MethodPut, "/api/v1/samples/-3", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSamples_SaveCenter(t *testing.T) {
	srv, mem := testServer(t, nil)
	mem.Set(channel.Readback("SY"), 4)

	w := do(t, srv, http.MethodPut, "/api/v1/samples/center", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if got := decode[SamplesResponse](t, w).Positions[stage.AxisStageY]; got[0] != 4 {
		t.Errorf("center stage_y = %v, want [4]", got)
	}
}

func TestStage_MoveToSample(t *testing.T) {
	srv, mem := testServer(t, nil)
	mem.Set(channel.Readback("SX"), 3)
	if w := do(t, srv, http.MethodPut, "/api/v1/samples/2", ""); w.Code != http.StatusOK {
		t.Fatalf("save status = %d", w.Code)
	}
	mem.Set(channel.Readback("SX"), 0)

	w := do(t, srv, http.MethodPost, "/api/v1/stage/move", `{"selector":"2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("move status = %d body %s", w.Code, w.Body)
	}
	v, err := mem.Read(context.Background(), channel.Readback("SX"))
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Errorf("stage_x after move = %g, want 3", v)
	}
}

// ─── Leveling and Scans ────────────────────────────────────────────

func TestLevel_Unconfigured(t *testing.T) {
	srv, _ := testServer(t, nil)

	if w := do(t, srv, http.MethodPost, "/api/v1/leveling/x", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestLevel_Axis(t *testing.T) {
	var got string
	srv, _ := testServer(t, func(d *Deps) {
		d.Level = func(_ context.Context, axis string) (leveling.Report, error) {
			got = axis
			return leveling.Report{Target: axis, Corrections: 3, Passes: []leveling.Pass{{Multiplier: 2, Converged: true}}}, nil
		}
	})

	if w := do(t, srv, http.MethodPost, "/api/v1/leveling/z", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown axis status = %d, want 400", w.Code)
	}

	w := do(t, srv, http.MethodPost, "/api/v1/leveling/y", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if got != "y" {
		t.Errorf("leveled axis = %q, want y", got)
	}
	if r := decode[leveling.Report](t, w); r.Corrections != 3 || !r.Converged() {
		t.Errorf("report = %+v", r)
	}
}

func TestLevel_ControlLoopFailure(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Level = func(context.Context, string) (leveling.Report, error) {
			return leveling.Report{}, fmt.Errorf("%w: sensor unavailable", leveling.ErrControlLoop)
		}
	})

	if w := do(t, srv, http.MethodPost, "/api/v1/leveling/x", ""); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestScan_Validation(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Scan = func(_ context.Context, req ScanRequest) (scan.Summary, error) {
			mesh := scan.CircleMesh{XAxis: "x", YAxis: "y", Radius: req.Radius, Step: req.Step, Pin: req.Pin}
			if _, _, err := mesh.Build(); err != nil {
				return scan.Summary{}, err
			}
			return scan.Summary{}, nil
		}
	})

	if w := do(t, srv, http.MethodPost, "/api/v1/scans", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty request status = %d, want 400", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/api/v1/scans", `{"radius":1,"step":0.5,"pin":3}`); w.Code != http.StatusBadRequest {
		t.Errorf("pin outside grid status = %d, want 400", w.Code)
	}
}

func TestScan_Summary(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Scan = func(_ context.Context, req ScanRequest) (scan.Summary, error) {
			return scan.Summary{
				Visited:   2,
				Skipped:   1,
				Documents: 3,
				Events: []scan.Event{
					{Point: scan.Point{"x": -req.Radius}},
					{Point: scan.Point{"x": req.Radius}},
				},
			}, nil
		}
	})

	w := do(t, srv, http.MethodPost, "/api/v1/scans", `{"radius":2,"step":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	resp := decode[ScanResponse](t, w)
	if resp.Visited != 2 || resp.Skipped != 1 || resp.Documents != 3 {
		t.Errorf("summary = %+v", resp)
	}
	if len(resp.Points) != 2 || resp.Points[1]["x"] != 2 {
		t.Errorf("points = %v", resp.Points)
	}
}

func TestMotion_RejectsConcurrentOperation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv, _ := testServer(t, func(d *Deps) {
		d.Level = func(context.Context, string) (leveling.Report, error) {
			close(started)
			<-release
			return leveling.Report{}, nil
		}
		d.Scan = func(context.Context, ScanRequest) (scan.Summary, error) {
			return scan.Summary{}, nil
		}
	})

	done := make(chan int)
	go func() {
		done <- do(t, srv, http.MethodPost, "/api/v1/leveling/x", "").Code
	}()
	<-started

	if w := do(t, srv, http.MethodPost, "/api/v1/scans", `{"samples":"all"}`); w.Code != http.StatusConflict {
		t.Errorf("concurrent scan status = %d, want 409", w.Code)
	}
	if m := decode[SystemMetrics](t, do(t, srv, http.MethodGet, "/api/v1/metrics", "")); !m.Stage.Busy {
		t.Error("metrics should report the stage busy")
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("leveling status = %d, want 200", code)
	}
}

// ─── WebSocket Hub ─────────────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{EventShutterState: {}},
	}
	other := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{EventScanDone: {}},
	}
	hub.Register(subscribed)
	hub.Register(other)
	if hub.ClientCount() != 2 {
		t.Fatalf("client count = %d, want 2", hub.ClientCount())
	}

	hub.Broadcast(EventShutterState, ShutterResponse{Name: "shutter", State: shutter.StateOpen})

	select {
	case msg := <-subscribed.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != EventShutterState {
			t.Errorf("message = %+v", wsMsg)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unregister(other)
	if hub.ClientCount() != 1 {
		t.Errorf("after unregister count = %d, want 1", hub.ClientCount())
	}
}

func TestHub_NilBroadcast(_ *testing.T) {
	var hub *Hub
	hub.Broadcast(EventScanDone, nil)
}

func TestWebSocket_StreamsAssetDocuments(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{EventAsset}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	res := asset.Resource{ID: "res-1", Spec: asset.SpecNPY, Root: "/data", ResourcePath: "a/b"}
	docs := []asset.Document{{Kind: asset.KindResource, Resource: &res}}
	if err := srv.Hub().Consume(context.Background(), docs); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	var ev struct {
		Type      string         `json:"type"`
		EventType string         `json:"event_type"`
		Payload   asset.Document `json:"payload"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.EventType != EventAsset || ev.Payload.Kind != asset.KindResource || ev.Payload.ID() != "res-1" {
		t.Errorf("event = %+v", ev)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatal(err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong || pong.ID != "2" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t, nil)
	srv.hub = nil
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.Hub() == nil {
		t.Error("Start should create a hub")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
