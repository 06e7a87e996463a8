package battle

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Team tags which side an entity fights on.
type Team int

const (
	TeamPlayer Team = iota
	TeamEnemy
)

func (t Team) String() string {
	switch t {
	case TeamPlayer:
		return "Player"
	case TeamEnemy:
		return "Enemy"
	default:
		return "Team(" + strconv.Itoa(int(t)) + ")"
	}
}

func (t Team) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the team name or its numeric code.
func (t *Team) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "Player":
			*t = TeamPlayer
		case "Enemy":
			*t = TeamEnemy
		default:
			return fmt.Errorf("battle: unknown team %q", s)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("battle: team must be a name or number: %w", err)
	}
	if n != int(TeamPlayer) && n != int(TeamEnemy) {
		return fmt.Errorf("battle: unknown team %d", n)
	}
	*t = Team(n)
	return nil
}

// Entity is a side-neutral identity used as a join key.
type Entity struct {
	UID  uint32 `json:"uid"`
	Team Team   `json:"team"`
}

// Avatar is a player character in the lineup.
type Avatar struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

type EnemyStats struct {
	Level uint32  `json:"level"`
	HP    float64 `json:"hp"`
}

// Enemy is one spawned enemy. UID is the per-battle instance id, ID the
// monster template id.
type Enemy struct {
	UID       uint32     `json:"uid"`
	ID        uint32     `json:"id"`
	Name      string     `json:"name"`
	BaseStats EnemyStats `json:"base_stats"`
}

type BattleStats struct {
	HP      float64 `json:"hp"`
	Attack  float64 `json:"attack"`
	Defense float64 `json:"defense"`
	Speed   float64 `json:"speed"`
	AV      float64 `json:"av"`
}

// BattleEntity joins an Entity to its mutable stats.
type BattleEntity struct {
	Entity Entity      `json:"entity"`
	Stats  BattleStats `json:"battle_stats"`
}

// StatKind names a stat carried by a StatChange event.
type StatKind string

const (
	StatHP      StatKind = "HP"
	StatAttack  StatKind = "Attack"
	StatDefense StatKind = "Defense"
	StatSpeed   StatKind = "Speed"
	StatAV      StatKind = "AV"
)

type Stat struct {
	Kind  StatKind `json:"kind"`
	Value float64  `json:"value"`
}

// apply writes the stat into s. Unknown kinds are ignored.
func (st Stat) apply(s *BattleStats) {
	switch st.Kind {
	case StatHP:
		s.HP = st.Value
	case StatAttack:
		s.Attack = st.Value
	case StatDefense:
		s.Defense = st.Value
	case StatSpeed:
		s.Speed = st.Value
	case StatAV:
		s.AV = st.Value
	}
}

type Skill struct {
	Name string `json:"name"`
	Type uint32 `json:"type"`
}

// SkillTypeName returns the display name of a skill type code.
func SkillTypeName(t uint32) string {
	switch t {
	case 0:
		return "Basic"
	case 1:
		return "Skill"
	case 2:
		return "Ultimate"
	case 3:
		return "Talent"
	default:
		return "Type_" + strconv.FormatUint(uint64(t), 10)
	}
}

// TurnInfo is one turn. AvatarsTurnDamage is positional against the lineup.
type TurnInfo struct {
	ActionValue       float64   `json:"action_value"`
	Cycle             uint32    `json:"cycle"`
	Wave              uint32    `json:"wave"`
	AvatarsTurnDamage []float64 `json:"avatars_turn_damage"`
	TotalDamage       float64   `json:"total_damage"`
}

func (t TurnInfo) clone() TurnInfo {
	t.AvatarsTurnDamage = cloneFloats(t.AvatarsTurnDamage)
	return t
}

type DamageDetail struct {
	Damage     float64 `json:"damage"`
	DamageType int     `json:"damage_type"`
}

// SkillHistoryEntry is one skill invocation with the damage attributed to it.
// TurnBattleID indexes the entity turn history at the time of use.
type SkillHistoryEntry struct {
	AvatarID     uint32         `json:"avatar_id"`
	SkillName    string         `json:"skill_name"`
	SkillType    uint32         `json:"skill_type"`
	TotalDamage  float64        `json:"total_damage"`
	DamageDetail []DamageDetail `json:"damage_detail"`
	TurnBattleID uint32         `json:"turn_battle_id"`
}

// TurnRecord is one row of the entity turn-order history.
type TurnRecord struct {
	Entity      Entity  `json:"entity"`
	ActionValue float64 `json:"action_value"`
	Wave        uint32  `json:"wave"`
	Cycle       uint32  `json:"cycle"`
}

// PerActionValue divides v by av, yielding 0 when av is not positive.
func PerActionValue(v, av float64) float64 {
	if av > 0 {
		return v / av
	}
	return 0
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func sum(v []float64) float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	return total
}
