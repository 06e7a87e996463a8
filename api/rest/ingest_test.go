package rest_test

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_Batch(t *testing.T) {
	f := newFixture(t)
	f.playBattle(t)

	assert.Equal(t, battle.PhaseEnded, f.engine.Store().Phase())
	assert.EqualValues(t, 6, f.engine.Stats().Applied)
}

func TestIngest_SingleEnvelope(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/ingest",
		`{"seq":1,"type":"OnSetBattleLineup","payload":{"avatars":[{"id":1001,"name":"Acheron"}]}}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.EqualValues(t, 1, resp["applied"])
	assert.EqualValues(t, 0, resp["failed"])
	assert.Equal(t, battle.PhaseInProgress, f.engine.Store().Phase())
}

func TestIngest_PartialFailure(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/ingest", `[
	 {"seq":1,"type":"OnSetBattleLineup","payload":{"avatars":[{"id":1001,"name":"Acheron"}]}},
	 {"seq":2,"type":"OnTeleport"},
	 {"seq":3,"type":"OnDamage","payload":{"attacker":{"uid":9999,"team":"Player"},"damage":5}},
	 {"seq":4,"type":"OnDamage","payload":{"attacker":{"uid":1001,"team":"Player"},"damage":5}}
	]`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.EqualValues(t, 2, resp["applied"])
	assert.EqualValues(t, 2, resp["failed"])

	results := resp["results"].([]any)
	require.Len(t, results, 4)
	assert.Nil(t, results[0].(map[string]any)["error"])
	assert.Contains(t, results[1].(map[string]any)["error"], "unknown event type")
	assert.Contains(t, results[2].(map[string]any)["error"], "not in lineup")
	assert.EqualValues(t, 4, results[3].(map[string]any)["seq"])

	assert.Equal(t, 5.0, f.engine.Store().View().TotalDamage)
}

func TestIngest_Malformed(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/ingest", `{"seq":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, 0, f.engine.Stats().Applied)
}
