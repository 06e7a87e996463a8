package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlerecorder/api/rest"
	"github.com/kasuganosora/battlerecorder/broadcast"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/game/export"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"github.com/kasuganosora/battlerecorder/record"
	"github.com/kasuganosora/battlerecorder/scheduler"
	"github.com/kasuganosora/battlerecorder/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type fixture struct {
	router    *gin.Engine
	engine    *battle.Engine
	rec       *export.Recorder
	records   *record.Service
	sink      *broadcast.Sink
	exportDir string
}

type staticCounter int

func (c staticCounter) Count() int { return int(c) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	hooks := hook.NewCenter()

	records := record.New(db, c, logger, record.Options{FlushInterval: time.Hour})
	records.Register(hooks)
	t.Cleanup(func() { records.Stop(t.Context()) })

	rec := export.NewRecorder(export.RecorderConfig{
		SummaryDir: t.TempDir(),
		Version:    "0.1.0",
		Hooks:      hooks,
		Logger:     logger,
		Now:        func() time.Time { return fixedNow },
	})
	sink := broadcast.NewSink(broadcast.Config{PubSub: ps, Hooks: hooks, Logger: logger})
	engine := battle.NewEngine(battle.EngineConfig{
		Sink:       sink,
		Finalizer:  rec,
		Classifier: battle.NewClassifier(map[string][]uint32{"MOC": {30101}}),
		Logger:     logger,
	})
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	f := &fixture{engine: engine, rec: rec, records: records, sink: sink, exportDir: t.TempDir()}
	battleH := rest.NewBattleHandler(engine, rec, rest.ExportSettings{Dir: f.exportDir}, logger)
	ingestH := rest.NewIngestHandler(engine, logger)
	summaryH := rest.NewSummaryHandler(records, logger)
	adminH := rest.NewAdminHandler(engine, sink, sched, staticCounter(2), staticCounter(1))

	r := gin.New()
	api := r.Group("/api")
	api.GET("/battle", battleH.View)
	api.GET("/battle/history", battleH.History)
	api.GET("/battle/export", battleH.Download)
	api.POST("/battle/export", battleH.Save)
	api.GET("/battle/prepared", battleH.Prepared)
	api.POST("/ingest", ingestH.Ingest)
	api.GET("/summaries", summaryH.List)
	api.GET("/summaries/top", summaryH.Top)
	api.GET("/summaries/latest", summaryH.Latest)
	api.GET("/admin/metrics", adminH.Metrics)
	f.router = r
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// oneTurnBattle is a complete battle: two avatars on stage 30101, one turn at
// AV 10 with 100 damage from the first avatar.
const oneTurnBattle = `[
 {"seq":1,"type":"OnSetBattleLineup","payload":{"avatars":[{"id":1001,"name":"Acheron"},{"id":1002,"name":"Pela"}]}},
 {"seq":2,"type":"OnBattleBegin","payload":{"max_waves":1,"max_cycles":30,"stage_id":30101}},
 {"seq":3,"type":"OnTurnBegin","payload":{"action_value":10}},
 {"seq":4,"type":"OnDamage","payload":{"attacker":{"uid":1001,"team":"Player"},"damage":100,"damage_type":0}},
 {"seq":5,"type":"OnTurnEnd"},
 {"seq":6,"type":"OnBattleEnd"}
]`

func (f *fixture) playBattle(t *testing.T) {
	t.Helper()
	w := f.do(http.MethodPost, "/api/ingest", oneTurnBattle)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 0, decode(t, w)["failed"])
}
