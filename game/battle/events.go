package battle

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is one inbound combat notification from the capture layer.
type Event interface {
	EventType() string
}

// Inbound event type names.
const (
	EventBattleBegin         = "OnBattleBegin"
	EventSetLineup           = "OnSetBattleLineup"
	EventDamage              = "OnDamage"
	EventTurnBegin           = "OnTurnBegin"
	EventTurnEnd             = "OnTurnEnd"
	EventEntityDefeated      = "OnEntityDefeated"
	EventBattleEnd           = "OnBattleEnd"
	EventUseSkill            = "OnUseSkill"
	EventUpdateWave          = "OnUpdateWave"
	EventUpdateCycle         = "OnUpdateCycle"
	EventStatChange          = "OnStatChange"
	EventInitializeEnemy     = "OnInitializeEnemy"
	EventUpdateTeamFormation = "OnUpdateTeamFormation"
)

var (
	ErrUnknownEventType     = errors.New("battle: unknown event type")
	ErrAttackerNotInLineup  = errors.New("battle: attacker not in lineup")
	ErrEventRejected        = errors.New("battle: event not applicable in current phase")
	ErrInconsistentSnapshot = errors.New("battle: inconsistent battle state")
)

// --- Concrete event types ---

type BattleBegin struct {
	MaxWaves  uint32 `json:"max_waves"`
	MaxCycles uint32 `json:"max_cycles"`
	StageID   uint32 `json:"stage_id"`
}

func (BattleBegin) EventType() string { return EventBattleBegin }

type SetLineup struct {
	Avatars []Avatar `json:"avatars"`
}

func (SetLineup) EventType() string { return EventSetLineup }

type Damage struct {
	Attacker   Entity  `json:"attacker"`
	Damage     float64 `json:"damage"`
	DamageType int     `json:"damage_type"`
}

func (Damage) EventType() string { return EventDamage }

type TurnBegin struct {
	ActionValue float64 `json:"action_value"`
	TurnOwner   *Entity `json:"turn_owner"`
}

func (TurnBegin) EventType() string { return EventTurnBegin }

type TurnEnd struct{}

func (TurnEnd) EventType() string { return EventTurnEnd }

type EntityDefeated struct {
	Killer         Entity `json:"killer"`
	EntityDefeated Entity `json:"entity_defeated"`
}

func (EntityDefeated) EventType() string { return EventEntityDefeated }

type BattleEnd struct{}

func (BattleEnd) EventType() string { return EventBattleEnd }

type UseSkill struct {
	Avatar Entity `json:"avatar"`
	Skill  Skill  `json:"skill"`
}

func (UseSkill) EventType() string { return EventUseSkill }

type UpdateWave struct {
	Wave uint32 `json:"wave"`
}

func (UpdateWave) EventType() string { return EventUpdateWave }

type UpdateCycle struct {
	Cycle uint32 `json:"cycle"`
}

func (UpdateCycle) EventType() string { return EventUpdateCycle }

type StatChange struct {
	Entity Entity `json:"entity"`
	Stat   Stat   `json:"stat"`
}

func (StatChange) EventType() string { return EventStatChange }

type InitializeEnemy struct {
	Enemy Enemy `json:"enemy"`
}

func (InitializeEnemy) EventType() string { return EventInitializeEnemy }

type UpdateTeamFormation struct {
	Team     Team     `json:"team"`
	Entities []Entity `json:"entities"`
}

func (UpdateTeamFormation) EventType() string { return EventUpdateTeamFormation }

// --- Decoding ---

type decoder func(json.RawMessage) (Event, error)

var decoders = map[string]decoder{
	EventBattleBegin:         decodeAs[BattleBegin],
	EventSetLineup:           decodeAs[SetLineup],
	EventDamage:              decodeAs[Damage],
	EventTurnBegin:           decodeAs[TurnBegin],
	EventTurnEnd:             decodeAs[TurnEnd],
	EventEntityDefeated:      decodeAs[EntityDefeated],
	EventBattleEnd:           decodeAs[BattleEnd],
	EventUseSkill:            decodeAs[UseSkill],
	EventUpdateWave:          decodeAs[UpdateWave],
	EventUpdateCycle:         decodeAs[UpdateCycle],
	EventStatChange:          decodeAs[StatChange],
	EventInitializeEnemy:     decodeAs[InitializeEnemy],
	EventUpdateTeamFormation: decodeAs[UpdateTeamFormation],
}

func decodeAs[T Event](payload json.RawMessage) (Event, error) {
	var ev T
	if len(payload) == 0 || string(payload) == "null" {
		return ev, nil
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Envelope is the inbound wire form of one event.
type Envelope struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEvent builds the typed event named by typ from its JSON payload.
func DecodeEvent(typ string, payload json.RawMessage) (Event, error) {
	dec, ok := decoders[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, typ)
	}
	ev, err := dec(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", typ, err)
	}
	return ev, nil
}

// EventTypes lists every inbound event type name.
func EventTypes() []string {
	return []string{
		EventBattleBegin, EventSetLineup, EventDamage, EventTurnBegin, EventTurnEnd,
		EventEntityDefeated, EventBattleEnd, EventUseSkill, EventUpdateWave,
		EventUpdateCycle, EventStatChange, EventInitializeEnemy, EventUpdateTeamFormation,
	}
}
