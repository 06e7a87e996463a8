package record

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/game/export"
	"github.com/kasuganosora/battlerecorder/model"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"github.com/kasuganosora/battlerecorder/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func saved(team string, dpav float64) *export.SavedSummary {
	return &export.SavedSummary{
		Path: "battle_summaries/SUMMARY_" + team + ".json",
		Summary: &export.Summary{
			TeamName:    team,
			Lineup:      []string{team},
			Timestamp:   "20260314_150926",
			TotalDamage: dpav * 100,
			TotalAV:     100,
			TotalDPAV:   dpav,
			Characters:  map[string]export.CharacterSummary{team: {TotalDamage: dpav * 100, DPAV: dpav}},
			TurnHistory: []battle.TurnInfo{{ActionValue: 50}, {ActionValue: 100}},
			AVHistory:   []battle.TurnInfo{},
			Mode:        battle.ModeMOC,
			StageID:     30101,
		},
	}
}

func TestNew_StartsWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nil, nop(), Options{})
	require.NotNil(t, svc)
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}

func TestRecord_FlushedOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nil, nop(), Options{FlushInterval: time.Hour})

	require.NoError(t, svc.Record(context.Background(), saved("Acheron", 12.5)))
	svc.Stop(context.Background())

	var recs []model.BattleRecord
	require.NoError(t, db.Find(&recs).Error)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "Acheron", r.TeamName)
	assert.Equal(t, "MOC", r.Mode)
	assert.Equal(t, uint32(30101), r.StageID)
	assert.Equal(t, 12.5, r.TotalDPAV)
	assert.Equal(t, 2, r.Turns)
	assert.NotEmpty(t, r.BattleID)
	assert.Equal(t, "battle_summaries/SUMMARY_Acheron.json", r.SummaryPath)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(r.Summary, &doc))
	assert.Equal(t, "Acheron", doc["team_name"])
}

func TestRecord_FlushedByBatchSize(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nil, nop(), Options{BatchSize: 2, FlushInterval: time.Hour})
	defer svc.Stop(context.Background())

	require.NoError(t, svc.Record(context.Background(), saved("A", 1)))
	require.NoError(t, svc.Record(context.Background(), saved("B", 2)))

	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.BattleRecord{}).Count(&n)
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTopAndLatest_FromCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	svc := New(db, c, nop(), Options{})
	defer svc.Stop(context.Background())
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, saved("Low", 5)))
	require.NoError(t, svc.Record(ctx, saved("High", 50)))
	require.NoError(t, svc.Record(ctx, saved("Mid", 20)))

	top, err := svc.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "High", top[0].TeamName)
	assert.Equal(t, 50.0, top[0].TotalDPAV)
	assert.Equal(t, "Mid", top[1].TeamName)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(latest, &doc))
	assert.Equal(t, "Mid", doc["team_name"])
}

func TestTopAndLatest_FallBackToDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nil, nop(), Options{})
	ctx := context.Background()

	_, err := svc.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSummary)

	require.NoError(t, svc.Record(ctx, saved("Low", 5)))
	require.NoError(t, svc.Record(ctx, saved("High", 50)))
	svc.Stop(ctx)

	top, err := svc.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "High", top[0].TeamName)

	recent, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "High", recent[0].TeamName)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(latest), `"High"`)
}

func TestRegister_RecordsOnSummaryHook(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	svc := New(db, c, nop(), Options{})
	hooks := hook.NewCenter()
	svc.Register(hooks)

	_, err := hooks.Trigger(context.Background(), hook.OnBattleSummary, saved("Acheron", 10))
	require.NoError(t, err)
	svc.Stop(context.Background())

	var n int64
	db.Model(&model.BattleRecord{}).Count(&n)
	assert.Equal(t, int64(1), n)

	// Foreign payloads are ignored.
	_, err = hooks.Trigger(context.Background(), hook.OnBattleSummary, "nope")
	assert.NoError(t, err)
}

func TestRankMember(t *testing.T) {
	member, err := rankMember(&model.BattleRecord{BattleID: "b1", TeamName: "Acheron", Mode: "MOC", StageID: 30101, TotalDPAV: 12.5})
	require.NoError(t, err)
	var entry RankEntry
	require.NoError(t, json.Unmarshal([]byte(member), &entry))
	assert.Equal(t, RankEntry{BattleID: "b1", TeamName: "Acheron", Mode: "MOC", StageID: 30101, TotalDPAV: 12.5}, entry)

	_, err = rankMember(&model.BattleRecord{TotalDPAV: math.NaN()})
	assert.ErrorContains(t, err, "marshal ranking entry")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, RankingSize, clampLimit(10_000))
}
