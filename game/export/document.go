package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/kasuganosora/battlerecorder/game/battle"
)

const (
	noOwnerAvatarID  = -1
	defaultKillerUID = -1
)

// Document is the structured export of one battle.
type Document struct {
	Lineup       []AvatarBattleInfo      `json:"lineup"`
	TurnHistory  []TurnBattleInfo        `json:"turnHistory"`
	SkillHistory []SkillBattleInfo       `json:"skillHistory"`
	DataAvatar   []json.RawMessage       `json:"dataAvatar"`
	TotalAV      float64                 `json:"totalAV"`
	TotalDamage  float64                 `json:"totalDamage"`
	DamagePerAV  float64                 `json:"damagePerAV"`
	CycleIndex   uint32                  `json:"cycleIndex"`
	WaveIndex    uint32                  `json:"waveIndex"`
	MaxWave      uint32                  `json:"maxWave"`
	MaxCycle     uint32                  `json:"maxCycle"`
	Version      string                  `json:"version"`
	AvatarDetail map[string]AvatarDetail `json:"avatarDetail"`
	EnemyDetail  map[string]EnemyDetail  `json:"enemyDetail"`
}

type AvatarBattleInfo struct {
	AvatarID uint32 `json:"avatarId"`
	IsDie    bool   `json:"isDie"`
}

// TurnBattleInfo is one turn-order row. AvatarID is -1 on the leading
// marker row.
type TurnBattleInfo struct {
	AvatarID    int64   `json:"avatarId"`
	ActionValue float64 `json:"actionValue"`
	WaveIndex   uint32  `json:"waveIndex"`
	CycleIndex  uint32  `json:"cycleIndex"`
}

type DamageDetail struct {
	Damage     float64 `json:"damage"`
	DamageType int     `json:"damage_type"`
}

type SkillBattleInfo struct {
	AvatarID     uint32         `json:"avatarId"`
	DamageDetail []DamageDetail `json:"damageDetail"`
	TotalDamage  float64        `json:"totalDamage"`
	SkillType    uint32         `json:"skillType"`
	SkillName    string         `json:"skillName"`
	TurnBattleID uint32         `json:"turnBattleId"`
}

type StatsHistory struct {
	Stats        map[string]float64 `json:"stats"`
	TurnBattleID uint32             `json:"turnBattleId"`
}

// AvatarDetail carries death fields that no event populates yet; they stay
// at isDie=false, killer_uid=-1.
type AvatarDetail struct {
	ID           uint32             `json:"id"`
	IsDie        bool               `json:"isDie"`
	KillerUID    int64              `json:"killer_uid"`
	Stats        map[string]float64 `json:"stats"`
	StatsHistory []StatsHistory     `json:"statsHistory"`
}

type EnemyDetail struct {
	ID            uint32             `json:"id"`
	IsDie         bool               `json:"isDie"`
	KillerUID     int64              `json:"killer_uid"`
	PositionIndex uint32             `json:"positionIndex"`
	WaveIndex     uint32             `json:"waveIndex"`
	Name          string             `json:"name"`
	MaxHP         float64            `json:"maxHP"`
	Level         uint32             `json:"level"`
	Stats         map[string]float64 `json:"stats"`
	StatsHistory  []StatsHistory     `json:"statsHistory"`
}

var errNilSnapshot = errors.New("export: nil snapshot")

func checkSnapshot(snap *battle.BattleContext) error {
	if snap == nil {
		return errNilSnapshot
	}
	if !snap.Consistent() {
		return fmt.Errorf("%w: %d avatars, %d damage slots", battle.ErrInconsistentSnapshot,
			len(snap.AvatarLineup), len(snap.RealTimeDamages))
	}
	return nil
}

// BuildDocument derives the export document from a snapshot.
func BuildDocument(snap *battle.BattleContext, version string) (*Document, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	doc := &Document{
		Lineup:       make([]AvatarBattleInfo, 0, len(snap.AvatarLineup)),
		TurnHistory:  make([]TurnBattleInfo, 0, len(snap.EntityTurnHistory)+1),
		SkillHistory: make([]SkillBattleInfo, 0, len(snap.SkillHistory)),
		DataAvatar:   []json.RawMessage{},
		TotalAV:      snap.ActionValue,
		TotalDamage:  snap.TotalDamage,
		DamagePerAV:  battle.PerActionValue(snap.TotalDamage, snap.ActionValue),
		CycleIndex:   snap.Cycle,
		WaveIndex:    snap.Wave,
		MaxWave:      snap.MaxWaves,
		MaxCycle:     snap.MaxCycle,
		Version:      version,
		AvatarDetail: make(map[string]AvatarDetail, len(snap.AvatarLineup)),
		EnemyDetail:  make(map[string]EnemyDetail, len(snap.Enemies)),
	}

	for _, a := range snap.AvatarLineup {
		doc.Lineup = append(doc.Lineup, AvatarBattleInfo{AvatarID: a.ID})
	}

	doc.TurnHistory = append(doc.TurnHistory, TurnBattleInfo{
		AvatarID:   noOwnerAvatarID,
		WaveIndex:  snap.Wave,
		CycleIndex: snap.MaxCycle,
	})
	for _, r := range snap.EntityTurnHistory {
		doc.TurnHistory = append(doc.TurnHistory, TurnBattleInfo{
			AvatarID:    int64(r.Entity.UID),
			ActionValue: r.ActionValue,
			WaveIndex:   r.Wave,
			CycleIndex:  r.Cycle,
		})
	}

	for _, s := range snap.SkillHistory {
		details := make([]DamageDetail, 0, len(s.DamageDetail))
		for _, d := range s.DamageDetail {
			details = append(details, DamageDetail{Damage: d.Damage, DamageType: d.DamageType})
		}
		doc.SkillHistory = append(doc.SkillHistory, SkillBattleInfo{
			AvatarID:     s.AvatarID,
			DamageDetail: details,
			TotalDamage:  s.TotalDamage,
			SkillType:    s.SkillType,
			SkillName:    s.SkillName,
			TurnBattleID: s.TurnBattleID,
		})
	}

	for _, a := range snap.AvatarLineup {
		stats := statsOf(snap.BattleAvatars, a.ID)
		doc.AvatarDetail[strconv.FormatUint(uint64(a.ID), 10)] = AvatarDetail{
			ID:           a.ID,
			KillerUID:    defaultKillerUID,
			Stats:        stats,
			StatsHistory: statsHistory(stats),
		}
	}

	for i, en := range snap.Enemies {
		stats := statsOf(snap.BattleEnemies, en.UID)
		doc.EnemyDetail[strconv.FormatUint(uint64(en.UID), 10)] = EnemyDetail{
			ID:            en.ID,
			KillerUID:     defaultKillerUID,
			PositionIndex: uint32(i),
			WaveIndex:     snap.Wave,
			Name:          en.Name,
			MaxHP:         en.BaseStats.HP,
			Level:         en.BaseStats.Level,
			Stats:         stats,
			StatsHistory:  statsHistory(stats),
		}
	}
	return doc, nil
}

// statsOf returns the stat map of the entity with uid, or an empty map.
func statsOf(entities []battle.BattleEntity, uid uint32) map[string]float64 {
	for _, be := range entities {
		if be.Entity.UID != uid {
			continue
		}
		s := be.Stats
		return map[string]float64{
			string(battle.StatHP):      s.HP,
			string(battle.StatAttack):  s.Attack,
			string(battle.StatDefense): s.Defense,
			string(battle.StatSpeed):   s.Speed,
			string(battle.StatAV):      s.AV,
		}
	}
	return map[string]float64{}
}

func statsHistory(stats map[string]float64) []StatsHistory {
	if len(stats) == 0 {
		return []StatsHistory{}
	}
	return []StatsHistory{{Stats: stats, TurnBattleID: 0}}
}
