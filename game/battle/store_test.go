package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SnapshotIsDeep(t *testing.T) {
	e, _ := newTestEngine(t)
	apply(t, e, twoAvatars,
		UseSkill{Avatar: player(1001), Skill: Skill{Name: "Shot"}},
		TurnBegin{ActionValue: 10},
		Damage{Attacker: player(1001), Damage: 5},
		TurnEnd{},
	)

	snap := e.Store().Snapshot()
	snap.RealTimeDamages[0] = 999
	snap.TurnHistory[0].AvatarsTurnDamage[0] = 999
	snap.AVHistory[0].AvatarsTurnDamage[0] = 999
	snap.SkillHistory[0].DamageDetail[0].Damage = 999
	snap.AvatarLineup[0].Name = "changed"

	again := e.Store().Snapshot()
	assert.Equal(t, 5.0, again.RealTimeDamages[0])
	assert.Equal(t, 5.0, again.TurnHistory[0].AvatarsTurnDamage[0])
	assert.Equal(t, 5.0, again.AVHistory[0].AvatarsTurnDamage[0])
	assert.Equal(t, 5.0, again.SkillHistory[0].DamageDetail[0].Damage)
	assert.Equal(t, "March", again.AvatarLineup[0].Name)
	assert.True(t, again.Consistent())
}

func TestStore_View(t *testing.T) {
	e, _ := newTestEngine(t)
	apply(t, e, twoAvatars,
		BattleBegin{StageID: 30101, MaxWaves: 2},
		InitializeEnemy{Enemy: Enemy{UID: 9, ID: 8001, Name: "Boss", BaseStats: EnemyStats{Level: 95, HP: 10000}}},
		StatChange{Entity: Entity{UID: 9, Team: TeamEnemy}, Stat: Stat{Kind: StatHP, Value: 4000}},
		TurnBegin{ActionValue: 0},
		Damage{Attacker: player(1002), Damage: 6000},
	)

	v := e.Store().View()
	assert.Equal(t, PhaseInProgress, v.Phase)
	assert.Equal(t, ModeMOC, v.Mode)
	require.Len(t, v.Lineup, 2)
	assert.Equal(t, 6000.0, v.Lineup[1].Damage)
	assert.Zero(t, v.Lineup[1].DPAV, "zero AV yields zero DPAV")
	assert.Zero(t, v.DPAV)
	require.Len(t, v.Enemies, 1)
	assert.Equal(t, 4000.0, v.Enemies[0].HP)
	assert.Equal(t, 10000.0, v.Enemies[0].MaxHP)

	apply(t, e, TurnBegin{ActionValue: 100})
	v = e.Store().View()
	assert.Equal(t, 60.0, v.Lineup[1].DPAV)
	assert.Zero(t, v.Lineup[0].DPAV)
	assert.Equal(t, 60.0, v.DPAV)
}

func TestStore_History(t *testing.T) {
	e, _ := newTestEngine(t)
	apply(t, e, twoAvatars, TurnBegin{ActionValue: 10, TurnOwner: &Entity{UID: 1001}}, TurnEnd{})
	h := e.Store().History()
	assert.Len(t, h.TurnHistory, 1)
	assert.Len(t, h.AVHistory, 1)
	assert.Len(t, h.EntityTurnHistory, 1)
	assert.Empty(t, h.SkillHistory)
}

func TestPerActionValue(t *testing.T) {
	assert.Equal(t, 0.0, PerActionValue(100, 0))
	assert.Equal(t, 0.0, PerActionValue(100, -5))
	assert.Equal(t, 10.0, PerActionValue(100, 10))
}

func TestAttributeDamageToRecentSkill(t *testing.T) {
	history := []SkillHistoryEntry{{AvatarID: 1}, {AvatarID: 2}}
	assert.True(t, attributeDamageToRecentSkill(history, 1, 4, 0))
	assert.False(t, attributeDamageToRecentSkill(history, 3, 4, 0))
	assert.Equal(t, 4.0, history[0].TotalDamage)
	assert.Zero(t, history[1].TotalDamage)
}
