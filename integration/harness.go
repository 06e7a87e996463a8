package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/battlerecorder/api/rest"
	"github.com/kasuganosora/battlerecorder/api/sse"
	apows "github.com/kasuganosora/battlerecorder/api/ws"
	"github.com/kasuganosora/battlerecorder/broadcast"
	"github.com/kasuganosora/battlerecorder/config"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/game/export"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"github.com/kasuganosora/battlerecorder/record"
	"github.com/kasuganosora/battlerecorder/scheduler"
	"github.com/kasuganosora/battlerecorder/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with the recorder wired together.
type TestServer struct {
	DB         *gorm.DB
	Engine     *battle.Engine
	Recorder   *export.Recorder
	Records    *record.Service
	Sink       *broadcast.Sink
	Hub        *apows.Hub
	SummaryDir string
	ExportDir  string
	Server     *httptest.Server
	URL        string // http://127.0.0.1:<port>
	WSURL      string // ws://127.0.0.1:<port>
	Sec        config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		IngestSecret:   "integration-test-secret",
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	hooks := hook.NewCenter()
	broadcast.Suppress(hooks, []string{battle.EventStatChange})

	records := record.New(db, c, logger, record.Options{FlushInterval: 50 * time.Millisecond})
	records.Register(hooks)

	ts := &TestServer{DB: db, Records: records, SummaryDir: t.TempDir(), ExportDir: t.TempDir(), Sec: sec}
	ts.Recorder = export.NewRecorder(export.RecorderConfig{
		SummaryDir: ts.SummaryDir,
		Version:    "test",
		Hooks:      hooks,
		Logger:     logger,
	})
	ts.Sink = broadcast.NewSink(broadcast.Config{PubSub: pubsub, Hooks: hooks, Logger: logger})
	ts.Engine = battle.NewEngine(battle.EngineConfig{
		Classifier: battle.NewClassifier(map[string][]uint32{"MOC": {30101}, "PF": {30301}}),
		Sink:       ts.Sink,
		Finalizer:  ts.Recorder,
		Logger:     logger,
	})
	sched := scheduler.New(logger)

	ctx, cancel := context.WithCancel(context.Background())
	ts.Hub = apows.NewHub(ts.Sink, "test", logger)
	go func() { _ = ts.Hub.Run(ctx) }()
	waitRelay(t, ts.Hub, ts.Sink)

	wsH := apows.NewHandler(ts.Hub, apows.NewEventRouter(ts.Engine, logger), nil, 256, logger)
	sseH := sse.NewHandler(ts.Sink, "test", logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ingestAuth := mw.IngestAuth(sec.IngestSecret)

	// ---- REST API routes (mirrors main.go) ----
	battleH := apirest.NewBattleHandler(ts.Engine, ts.Recorder, apirest.ExportSettings{Dir: ts.ExportDir}, logger)
	ingestH := apirest.NewIngestHandler(ts.Engine, logger)
	summaryH := apirest.NewSummaryHandler(records, logger)
	adminH := apirest.NewAdminHandler(ts.Engine, ts.Sink, sched, ts.Hub, sseH)

	api := r.Group("/api")
	api.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))
	{
		api.GET("/battle", battleH.View)
		api.GET("/battle/history", battleH.History)
		api.GET("/battle/export", battleH.Download)
		api.POST("/battle/export", battleH.Save)
		api.GET("/battle/prepared", battleH.Prepared)
		api.POST("/ingest", ingestAuth, ingestH.Ingest)
		api.GET("/summaries", summaryH.List)
		api.GET("/summaries/top", summaryH.Top)
		api.GET("/summaries/latest", summaryH.Latest)
		api.GET("/admin/metrics", mw.AdminKey("admin-key"), adminH.Metrics)
	}

	// ---- WebSocket / SSE ----
	r.GET("/ws", wsH.ServeWS)
	r.GET("/ingest", ingestAuth, wsH.ServeIngest)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	ts.Server = httptest.NewServer(r)
	ts.URL = ts.Server.URL
	ts.WSURL = "ws" + ts.URL[len("http"):]

	t.Cleanup(func() {
		ts.Server.Close()
		cancel()
		sched.Stop()
		records.Stop(context.Background())
	})
	return ts
}

// waitRelay blocks until the hub is receiving from the sink.
func waitRelay(t *testing.T, hub *apows.Hub, sink *broadcast.Sink) {
	t.Helper()
	watcher := apows.NewSession(nil, "", 16, zap.NewNop())
	hub.Register(watcher)
	defer hub.Unregister(watcher)
	<-watcher.SendChan // greeting
	require.Eventually(t, func() bool {
		_ = sink.Publish(context.Background(), battle.Packet{Type: "RelayCheck"})
		return len(watcher.SendChan) > 0
	}, 2*time.Second, 10*time.Millisecond, "hub relay never came up")
}

// Token issues an ingest token for source.
func (ts *TestServer) Token(t *testing.T, source string) string {
	t.Helper()
	token, err := mw.GenerateToken(source, ts.Sec.IngestSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// --- HTTP helpers ---

// PostJSON sends a POST request with a JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case string:
		data = []byte(b)
	default:
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request.
func (ts *TestServer) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	return resp
}

// ReadJSON decodes the response body into out and closes it.
func ReadJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// --- WebSocket helpers ---

// WSClient is a test WebSocket client.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  uint64
}

// Subscribe opens a packet stream on /ws.
func (ts *TestServer) Subscribe(t *testing.T) *WSClient {
	t.Helper()
	return ts.dial(t, ts.WSURL+"/ws")
}

// Capture opens an ingest connection on /ingest with a valid token.
func (ts *TestServer) Capture(t *testing.T) *WSClient {
	t.Helper()
	return ts.dial(t, ts.WSURL+"/ingest?token="+ts.Token(t, "capture-test"))
}

func (ts *TestServer) dial(t *testing.T, url string) *WSClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &WSClient{t: t, conn: conn}
}

// Send writes one event envelope with the next sequence number.
func (c *WSClient) Send(typ string, payload any) {
	c.t.Helper()
	c.seq++
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	if payload == nil {
		raw = nil
	}
	data, err := json.Marshal(battle.Envelope{Seq: c.seq, Type: typ, Payload: raw})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// Packet is a decoded outbound packet with its payload left raw.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Recv reads the next packet.
func (c *WSClient) Recv(timeout time.Duration) Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var pkt Packet
	require.NoError(c.t, json.Unmarshal(data, &pkt))
	return pkt
}

// RecvType reads packets until one of the given type arrives.
func (c *WSClient) RecvType(typ string, timeout time.Duration) Packet {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.True(c.t, remaining > 0, "timeout waiting for %s", typ)
		pkt := c.Recv(remaining)
		if pkt.Type == typ {
			return pkt
		}
	}
}
