package battle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent(EventDamage, json.RawMessage(`{"attacker":{"uid":1001,"team":"Player"},"damage":12.5,"damage_type":3}`))
	require.NoError(t, err)
	assert.Equal(t, Damage{Attacker: Entity{UID: 1001, Team: TeamPlayer}, Damage: 12.5, DamageType: 3}, ev)

	ev, err = DecodeEvent(EventTurnBegin, json.RawMessage(`{"action_value":33,"turn_owner":{"uid":7,"team":"Enemy"}}`))
	require.NoError(t, err)
	tb := ev.(TurnBegin)
	require.NotNil(t, tb.TurnOwner)
	assert.Equal(t, TeamEnemy, tb.TurnOwner.Team)

	ev, err = DecodeEvent(EventTurnEnd, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnEnd{}, ev)

	ev, err = DecodeEvent(EventUpdateTeamFormation, json.RawMessage(`{"team":1,"entities":[{"uid":3,"team":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, TeamEnemy, ev.(UpdateTeamFormation).Team)
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent("OnSomethingElse", nil)
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodeEvent(EventDamage, json.RawMessage(`{"attacker":{"uid":1,"team":"Neutral"}}`))
	assert.Error(t, err)

	_, err = DecodeEvent(EventUpdateWave, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestDecodeEvent_CoversEveryType(t *testing.T) {
	for _, typ := range EventTypes() {
		ev, err := DecodeEvent(typ, json.RawMessage(`{}`))
		require.NoError(t, err, typ)
		assert.Equal(t, typ, ev.EventType())
	}
}

func TestPacketJSON(t *testing.T) {
	b, err := json.Marshal(Packet{Seq: 3, Type: EventDamage, Payload: Damage{Attacker: Entity{UID: 1}, Damage: 5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":3,"type":"OnDamage","payload":{"attacker":{"uid":1,"team":"Player"},"damage":5,"damage_type":0}}`, string(b))

	b, err = json.Marshal(ConnectedPacket("1.2.3"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":0,"type":"Connected","payload":{"version":"1.2.3"}}`, string(b))
}

func TestSkillTypeName(t *testing.T) {
	assert.Equal(t, "Basic", SkillTypeName(0))
	assert.Equal(t, "Ultimate", SkillTypeName(2))
	assert.Equal(t, "Talent", SkillTypeName(3))
	assert.Equal(t, "Type_9", SkillTypeName(9))
}
