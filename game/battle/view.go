package battle

// AvatarView is one lineup slot as the overlay shows it.
type AvatarView struct {
	ID     uint32  `json:"id"`
	Name   string  `json:"name"`
	Damage float64 `json:"damage"`
	DPAV   float64 `json:"dpav"`
}

type EnemyView struct {
	UID   uint32  `json:"uid"`
	ID    uint32  `json:"id"`
	Name  string  `json:"name"`
	Level uint32  `json:"level"`
	MaxHP float64 `json:"max_hp"`
	HP    float64 `json:"hp"`
}

// View is the live state polled by the UI.
type View struct {
	Phase               Phase        `json:"phase"`
	Mode                BattleMode   `json:"mode"`
	StageID             uint32       `json:"stage_id"`
	Lineup              []AvatarView `json:"lineup"`
	Enemies             []EnemyView  `json:"enemies"`
	TotalDamage         float64      `json:"total_damage"`
	ActionValue         float64      `json:"action_value"`
	RelativeActionValue float64      `json:"relative_action_value"`
	DPAV                float64      `json:"dpav"`
	Wave                uint32       `json:"wave"`
	MaxWaves            uint32       `json:"max_waves"`
	Cycle               uint32       `json:"cycle"`
	MaxCycle            uint32       `json:"max_cycle"`
	TurnCount           int          `json:"turn_count"`
}

// History is the closed-turn record of the current battle.
type History struct {
	TurnHistory       []TurnInfo          `json:"turn_history"`
	AVHistory         []TurnInfo          `json:"av_history"`
	EntityTurnHistory []TurnRecord        `json:"entity_turn_history"`
	SkillHistory      []SkillHistoryEntry `json:"skill_history"`
}

// View copies out the live view under one short lock.
func (s *Store) View() View {
	var v View
	s.Read(func(bc *BattleContext) {
		v = View{
			Phase:               bc.Phase,
			Mode:                bc.BattleMode,
			StageID:             bc.StageID,
			Lineup:              make([]AvatarView, 0, len(bc.AvatarLineup)),
			Enemies:             make([]EnemyView, 0, len(bc.Enemies)),
			TotalDamage:         bc.TotalDamage,
			ActionValue:         bc.ActionValue,
			RelativeActionValue: bc.ActionValue - bc.LastWaveActionValue,
			DPAV:                PerActionValue(bc.TotalDamage, bc.ActionValue),
			Wave:                bc.Wave,
			MaxWaves:            bc.MaxWaves,
			Cycle:               bc.Cycle,
			MaxCycle:            bc.MaxCycle,
			TurnCount:           bc.TurnCount,
		}
		for i, a := range bc.AvatarLineup {
			var dmg float64
			if i < len(bc.RealTimeDamages) {
				dmg = bc.RealTimeDamages[i]
			}
			v.Lineup = append(v.Lineup, AvatarView{
				ID:     a.ID,
				Name:   a.Name,
				Damage: dmg,
				DPAV:   PerActionValue(dmg, bc.ActionValue),
			})
		}
		for _, en := range bc.Enemies {
			ev := EnemyView{
				UID:   en.UID,
				ID:    en.ID,
				Name:  en.Name,
				Level: en.BaseStats.Level,
				MaxHP: en.BaseStats.HP,
			}
			if be := bc.battleEntity(Entity{UID: en.UID, Team: TeamEnemy}); be != nil {
				ev.HP = be.Stats.HP
			}
			v.Enemies = append(v.Enemies, ev)
		}
	})
	return v
}

func (s *Store) History() History {
	var h History
	s.Read(func(bc *BattleContext) {
		snap := bc.Clone()
		h = History{
			TurnHistory:       snap.TurnHistory,
			AVHistory:         snap.AVHistory,
			EntityTurnHistory: snap.EntityTurnHistory,
			SkillHistory:      snap.SkillHistory,
		}
	})
	return h
}
