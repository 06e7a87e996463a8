package battle

// BattleContext is the aggregate state of the current battle. It is owned by
// a Store; code outside the store only ever sees clones.
type BattleContext struct {
	Phase Phase `json:"phase"`

	AvatarLineup  []Avatar       `json:"avatar_lineup"`
	BattleAvatars []BattleEntity `json:"battle_avatars"`
	Enemies       []Enemy        `json:"enemies"`
	EnemyLineup   []Entity       `json:"enemy_lineup"`
	BattleEnemies []BattleEntity `json:"battle_enemies"`

	TurnHistory       []TurnInfo          `json:"turn_history"`
	AVHistory         []TurnInfo          `json:"av_history"`
	EntityTurnHistory []TurnRecord        `json:"entity_turn_history"`
	SkillHistory      []SkillHistoryEntry `json:"skill_history"`

	CurrentTurnBattleID uint32   `json:"current_turn_battle_id"`
	CurrentTurn         TurnInfo `json:"current_turn"`

	// LastWaveActionValue is the AV at the last MOC wave change; the UI
	// shows AV relative to it.
	LastWaveActionValue float64 `json:"last_wave_action_value"`
	ActionValue         float64 `json:"action_value"`
	TurnCount           int     `json:"turn_count"`
	TotalDamage         float64 `json:"total_damage"`

	// RealTimeDamages is positional against AvatarLineup.
	RealTimeDamages []float64 `json:"real_time_damages"`

	MaxWaves   uint32     `json:"max_waves"`
	Wave       uint32     `json:"wave"`
	Cycle      uint32     `json:"cycle"`
	MaxCycle   uint32     `json:"max_cycle"`
	StageID    uint32     `json:"stage_id"`
	BattleMode BattleMode `json:"battle_mode"`
}

// resetForLineup clears everything accumulated for the previous battle and
// sizes the positional vectors for the new lineup. BattleMode is kept since
// BattleBegin owns it.
func (bc *BattleContext) resetForLineup(avatars []Avatar) {
	mode := bc.BattleMode
	*bc = BattleContext{BattleMode: mode}

	bc.AvatarLineup = append([]Avatar(nil), avatars...)
	bc.RealTimeDamages = make([]float64, len(avatars))
	bc.CurrentTurn.AvatarsTurnDamage = make([]float64, len(avatars))
	bc.BattleAvatars = make([]BattleEntity, 0, len(avatars))
	for _, a := range avatars {
		bc.BattleAvatars = append(bc.BattleAvatars, BattleEntity{
			Entity: Entity{UID: a.ID, Team: TeamPlayer},
		})
	}
}

func (bc *BattleContext) lineupIndex(avatarID uint32) (int, bool) {
	for i, a := range bc.AvatarLineup {
		if a.ID == avatarID {
			return i, true
		}
	}
	return -1, false
}

func (bc *BattleContext) battleEntity(e Entity) *BattleEntity {
	list := bc.BattleAvatars
	if e.Team == TeamEnemy {
		list = bc.BattleEnemies
	}
	for i := range list {
		if list[i].Entity == e {
			return &list[i]
		}
	}
	return nil
}

// Consistent reports whether the positional vectors match the lineup.
func (bc *BattleContext) Consistent() bool {
	n := len(bc.AvatarLineup)
	if len(bc.RealTimeDamages) != n || len(bc.CurrentTurn.AvatarsTurnDamage) != n {
		return false
	}
	for _, t := range bc.TurnHistory {
		if len(t.AvatarsTurnDamage) != n {
			return false
		}
	}
	return true
}

// Clone returns a deep copy that shares no memory with bc.
func (bc *BattleContext) Clone() *BattleContext {
	out := *bc
	out.AvatarLineup = append([]Avatar(nil), bc.AvatarLineup...)
	out.BattleAvatars = append([]BattleEntity(nil), bc.BattleAvatars...)
	out.Enemies = append([]Enemy(nil), bc.Enemies...)
	out.EnemyLineup = append([]Entity(nil), bc.EnemyLineup...)
	out.BattleEnemies = append([]BattleEntity(nil), bc.BattleEnemies...)
	out.TurnHistory = cloneTurns(bc.TurnHistory)
	out.AVHistory = cloneTurns(bc.AVHistory)
	out.EntityTurnHistory = append([]TurnRecord(nil), bc.EntityTurnHistory...)
	if bc.SkillHistory != nil {
		out.SkillHistory = make([]SkillHistoryEntry, len(bc.SkillHistory))
		for i, s := range bc.SkillHistory {
			s.DamageDetail = append([]DamageDetail(nil), s.DamageDetail...)
			out.SkillHistory[i] = s
		}
	}
	out.CurrentTurn = bc.CurrentTurn.clone()
	out.RealTimeDamages = cloneFloats(bc.RealTimeDamages)
	return &out
}

func cloneTurns(turns []TurnInfo) []TurnInfo {
	if turns == nil {
		return nil
	}
	out := make([]TurnInfo, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}
