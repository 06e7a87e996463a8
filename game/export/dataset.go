package export

import (
	"fmt"

	"github.com/kasuganosora/battlerecorder/game/battle"
)

// Row kinds of the analytical dataset.
const (
	RowCharacterSummary = "character_summary"
	RowSkillDetail      = "skill_detail"
)

// Row is one record of the flattened dataset. Fields that do not belong to
// the row's kind are nil.
type Row struct {
	DataType      string `json:"data_type"`
	CharacterName string `json:"character_name"`
	CharacterID   uint32 `json:"character_id"`

	TotalDamage            *float64 `json:"total_damage,omitempty"`
	DamagePercentage       *float64 `json:"damage_percentage,omitempty"`
	DPAV                   *float64 `json:"dpav,omitempty"`
	PrimarySkillUsageCount *uint32  `json:"primary_skill_usage_count,omitempty"`
	TurnsTaken             *uint32  `json:"turns_taken,omitempty"`
	AverageDamagePerTurn   *float64 `json:"average_damage_per_turn,omitempty"`
	MaxSingleTurnDamage    *float64 `json:"max_single_turn_damage,omitempty"`
	FirstTurnNumber        *uint32  `json:"first_turn_number,omitempty"`
	LastTurnNumber         *uint32  `json:"last_turn_number,omitempty"`

	TurnOrder                 *uint32  `json:"turn_order,omitempty"`
	TurnBattleID              *uint32  `json:"turn_battle_id,omitempty"`
	Wave                      *uint32  `json:"wave,omitempty"`
	Cycle                     *uint32  `json:"cycle,omitempty"`
	ActionValue               *float64 `json:"action_value,omitempty"`
	SkillName                 *string  `json:"skill_name,omitempty"`
	SkillType                 *uint32  `json:"skill_type,omitempty"`
	SkillTypeName             *string  `json:"skill_type_name,omitempty"`
	SkillDamage               *float64 `json:"skill_damage,omitempty"`
	CumulativeDamage          *float64 `json:"cumulative_damage,omitempty"`
	CumulativeCharacterDamage *float64 `json:"cumulative_character_damage,omitempty"`
	SkillDamagePercentage     *float64 `json:"skill_damage_percentage,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func percentOf(part, total float64) float64 {
	if total > 0 {
		return part / total * 100
	}
	return 0
}

type skillUsage struct {
	count  uint32
	damage float64
}

// BuildDataset derives the analytical dataset: one character_summary row
// per avatar followed by one skill_detail row per skill invocation.
func BuildDataset(snap *battle.BattleContext) ([]Row, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(snap.AvatarLineup)+len(snap.SkillHistory))
	total := snap.TotalDamage
	av := snap.ActionValue

	usage := make(map[uint32]map[string]*skillUsage)
	for _, s := range snap.SkillHistory {
		byName := usage[s.AvatarID]
		if byName == nil {
			byName = make(map[string]*skillUsage)
			usage[s.AvatarID] = byName
		}
		u := byName[s.SkillName]
		if u == nil {
			u = &skillUsage{}
			byName[s.SkillName] = u
		}
		u.count++
		u.damage += s.TotalDamage
	}

	for i, a := range snap.AvatarLineup {
		dmg := snap.RealTimeDamages[i]

		var primary uint32
		for _, u := range usage[a.ID] {
			primary = max(primary, u.count)
		}

		// Turn numbers are 1-based positions in the turn history.
		var turns []uint32
		var best float64
		for n, turn := range snap.TurnHistory {
			d := turn.AvatarsTurnDamage[i]
			if d > 0 {
				turns = append(turns, uint32(n+1))
				best = max(best, d)
			}
		}
		var first, last uint32
		if len(turns) > 0 {
			first, last = turns[0], turns[len(turns)-1]
		}
		var avgPerTurn float64
		if len(turns) > 0 {
			avgPerTurn = dmg / float64(len(turns))
		}

		rows = append(rows, Row{
			DataType:               RowCharacterSummary,
			CharacterName:          a.Name,
			CharacterID:            a.ID,
			TotalDamage:            ptr(dmg),
			DamagePercentage:       ptr(percentOf(dmg, total)),
			DPAV:                   ptr(battle.PerActionValue(dmg, av)),
			PrimarySkillUsageCount: ptr(primary),
			TurnsTaken:             ptr(uint32(len(turns))),
			AverageDamagePerTurn:   ptr(avgPerTurn),
			MaxSingleTurnDamage:    ptr(best),
			FirstTurnNumber:        ptr(first),
			LastTurnNumber:         ptr(last),
		})
	}

	var cumulative float64
	perAvatar := make(map[uint32]float64)
	for n, s := range snap.SkillHistory {
		cumulative += s.TotalDamage
		perAvatar[s.AvatarID] += s.TotalDamage

		wave, cycle, turnAV := uint32(1), uint32(1), 0.0
		if int(s.TurnBattleID) < len(snap.EntityTurnHistory) {
			r := snap.EntityTurnHistory[s.TurnBattleID]
			wave, cycle, turnAV = r.Wave, r.Cycle, r.ActionValue
		}

		rows = append(rows, Row{
			DataType:                  RowSkillDetail,
			CharacterName:             avatarName(snap.AvatarLineup, s.AvatarID),
			CharacterID:               s.AvatarID,
			TurnOrder:                 ptr(uint32(n + 1)),
			TurnBattleID:              ptr(s.TurnBattleID),
			Wave:                      ptr(wave),
			Cycle:                     ptr(cycle),
			ActionValue:               ptr(turnAV),
			SkillName:                 ptr(s.SkillName),
			SkillType:                 ptr(s.SkillType),
			SkillTypeName:             ptr(battle.SkillTypeName(s.SkillType)),
			SkillDamage:               ptr(s.TotalDamage),
			CumulativeDamage:          ptr(cumulative),
			CumulativeCharacterDamage: ptr(perAvatar[s.AvatarID]),
			SkillDamagePercentage:     ptr(percentOf(s.TotalDamage, total)),
		})
	}
	return rows, nil
}

func avatarName(lineup []battle.Avatar, id uint32) string {
	for _, a := range lineup {
		if a.ID == id {
			return a.Name
		}
	}
	return fmt.Sprintf("Avatar_%d", id)
}
