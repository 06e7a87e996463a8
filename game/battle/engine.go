package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink receives every packet the engine produces.
type Sink interface {
	Publish(ctx context.Context, pkt Packet) error
}

// Finalizer is handed a private snapshot once a battle ends. It runs after
// the store lock is released.
type Finalizer interface {
	Finalize(ctx context.Context, snap *BattleContext) error
}

type discardSink struct{}

func (discardSink) Publish(context.Context, Packet) error { return nil }

// EngineConfig configures an Engine.
type EngineConfig struct {
	Store      *Store      // nil = NewStore()
	Classifier *Classifier // nil = empty table
	Sink       Sink        // nil = discard
	Finalizer  Finalizer   // optional
	Logger     *zap.Logger
}

// Stats counts processed events since start.
type Stats struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

type handler func(bc *BattleContext, ev Event) (any, error)

// on adapts a typed handler into the dispatch table.
func on[T Event](fn func(bc *BattleContext, ev T) (any, error)) handler {
	return func(bc *BattleContext, ev Event) (any, error) {
		typed, ok := ev.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
		}
		return fn(bc, typed)
	}
}

// Engine folds events into the store and publishes one packet per event.
type Engine struct {
	store      *Store
	classifier *Classifier
	sink       Sink
	finalizer  Finalizer
	logger     *zap.Logger
	handlers   map[string]handler

	seq      atomic.Uint64
	applied  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		sink:       cfg.Sink,
		finalizer:  cfg.Finalizer,
		logger:     cfg.Logger,
	}
	if e.store == nil {
		e.store = NewStore()
	}
	if e.classifier == nil {
		e.classifier = NewClassifier(nil)
	}
	if e.sink == nil {
		e.sink = discardSink{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.handlers = map[string]handler{
		EventBattleBegin:         on(e.onBattleBegin),
		EventSetLineup:           on(e.onSetLineup),
		EventDamage:              on(e.onDamage),
		EventTurnBegin:           on(e.onTurnBegin),
		EventTurnEnd:             on(e.onTurnEnd),
		EventEntityDefeated:      on(e.onEntityDefeated),
		EventBattleEnd:           on(e.onBattleEnd),
		EventUseSkill:            on(e.onUseSkill),
		EventUpdateWave:          on(e.onUpdateWave),
		EventUpdateCycle:         on(e.onUpdateCycle),
		EventStatChange:          on(e.onStatChange),
		EventInitializeEnemy:     on(e.onInitializeEnemy),
		EventUpdateTeamFormation: on(e.onUpdateTeamFormation),
	}
	return e
}

func (e *Engine) Store() *Store { return e.store }

func (e *Engine) Stats() Stats {
	return Stats{
		Applied:  e.applied.Load(),
		Rejected: e.rejected.Load(),
		Failed:   e.failed.Load(),
		Dropped:  e.dropped.Load(),
	}
}

// Apply processes one event. A failed event leaves the state untouched,
// publishes an Error packet and returns the cause. A duplicate cycle update
// is dropped without a packet.
func (e *Engine) Apply(ctx context.Context, ev Event) error {
	if ev == nil {
		return e.fail(ctx, "", fmt.Errorf("%w: nil event", ErrUnknownEventType))
	}
	typ := ev.EventType()
	h, ok := e.handlers[typ]
	if !ok {
		return e.fail(ctx, typ, fmt.Errorf("%w: %q", ErrUnknownEventType, typ))
	}

	var (
		payload any
		snap    *BattleContext
		dropped bool
		err     error
	)
	e.store.update(func(bc *BattleContext) {
		if uc, ok := ev.(UpdateCycle); ok && uc.Cycle == bc.Cycle {
			dropped = true
			return
		}
		if !bc.Phase.Accepts(typ) {
			err = fmt.Errorf("%w: %s during %s", ErrEventRejected, typ, bc.Phase)
			return
		}
		if payload, err = h(bc, ev); err != nil {
			return
		}
		bc.Phase = bc.Phase.Next(typ)
		if typ == EventBattleEnd {
			snap = bc.Clone()
		}
	})

	if dropped {
		e.dropped.Add(1)
		return nil
	}
	if err != nil {
		return e.fail(ctx, typ, err)
	}
	e.applied.Add(1)

	if snap != nil && e.finalizer != nil {
		if ferr := e.finalizer.Finalize(ctx, snap); ferr != nil {
			e.logger.Error("finalize battle", zap.Error(ferr))
		}
	}
	e.publish(ctx, Packet{Type: typ, Payload: payload})
	return nil
}

// ApplyRaw decodes an inbound payload and applies it. Decode failures are
// reported like any other failed event.
func (e *Engine) ApplyRaw(ctx context.Context, typ string, payload json.RawMessage) error {
	ev, err := DecodeEvent(typ, payload)
	if err != nil {
		return e.fail(ctx, typ, err)
	}
	return e.Apply(ctx, ev)
}

func (e *Engine) fail(ctx context.Context, typ string, err error) error {
	if errors.Is(err, ErrEventRejected) {
		e.rejected.Add(1)
	} else {
		e.failed.Add(1)
	}
	e.logger.Warn("battle event not applied", zap.String("type", typ), zap.Error(err))
	e.publish(ctx, ErrorPacket(err))
	return err
}

func (e *Engine) publish(ctx context.Context, pkt Packet) {
	pkt.Seq = e.seq.Add(1)
	if err := e.sink.Publish(ctx, pkt); err != nil {
		e.logger.Warn("publish packet", zap.String("type", pkt.Type), zap.Error(err))
	}
}

// --- Handlers. All run under the store lock and must not retain bc. ---

// BattleBegin may arrive after the lineup, so it never resets.
func (e *Engine) onBattleBegin(bc *BattleContext, ev BattleBegin) (any, error) {
	bc.MaxWaves = ev.MaxWaves
	bc.StageID = ev.StageID
	bc.BattleMode = e.classifier.Classify(ev.StageID)
	e.logger.Info("battle started",
		zap.Uint32("stage_id", ev.StageID),
		zap.Uint32("max_waves", ev.MaxWaves),
		zap.Stringer("mode", bc.BattleMode))
	return ev, nil
}

func (e *Engine) onSetLineup(bc *BattleContext, ev SetLineup) (any, error) {
	bc.resetForLineup(ev.Avatars)
	for _, a := range bc.AvatarLineup {
		e.logger.Info("avatar loaded in lineup", zap.Uint32("id", a.ID), zap.String("name", a.Name))
	}
	return SetLineup{Avatars: append([]Avatar(nil), bc.AvatarLineup...)}, nil
}

func (e *Engine) onDamage(bc *BattleContext, ev Damage) (any, error) {
	idx, ok := bc.lineupIndex(ev.Attacker.UID)
	if !ok {
		return nil, fmt.Errorf("%w: avatar %d", ErrAttackerNotInLineup, ev.Attacker.UID)
	}
	if idx >= len(bc.RealTimeDamages) || idx >= len(bc.CurrentTurn.AvatarsTurnDamage) {
		return nil, fmt.Errorf("%w: damage vectors shorter than lineup", ErrInconsistentSnapshot)
	}
	bc.CurrentTurn.AvatarsTurnDamage[idx] += ev.Damage
	bc.RealTimeDamages[idx] += ev.Damage
	bc.TotalDamage += ev.Damage
	attributeDamageToRecentSkill(bc.SkillHistory, ev.Attacker.UID, ev.Damage, ev.DamageType)

	e.logger.Debug("damage",
		zap.Uint32("attacker", ev.Attacker.UID),
		zap.Float64("damage", ev.Damage),
		zap.Int("type", ev.DamageType))
	return ev, nil
}

func (e *Engine) onTurnBegin(bc *BattleContext, ev TurnBegin) (any, error) {
	bc.ActionValue = ev.ActionValue
	bc.CurrentTurn.ActionValue = ev.ActionValue
	bc.CurrentTurnBattleID++
	if ev.TurnOwner != nil {
		bc.EntityTurnHistory = append(bc.EntityTurnHistory, TurnRecord{
			Entity:      *ev.TurnOwner,
			ActionValue: ev.ActionValue,
			Wave:        bc.Wave,
			Cycle:       bc.Cycle,
		})
	}
	e.logger.Debug("turn begin", zap.Float64("av", ev.ActionValue))
	return ev, nil
}

func (e *Engine) onTurnEnd(bc *BattleContext, _ TurnEnd) (any, error) {
	bc.CurrentTurn.Wave = bc.Wave
	bc.CurrentTurn.Cycle = bc.Cycle

	turn := bc.CurrentTurn.clone()
	turn.TotalDamage = sum(turn.AvatarsTurnDamage)
	bc.TurnHistory = append(bc.TurnHistory, turn)

	// Turns sharing an action value happened simultaneously; merge them.
	if n := len(bc.AVHistory); n > 0 && bc.AVHistory[n-1].ActionValue == turn.ActionValue {
		last := &bc.AVHistory[n-1]
		for i, d := range turn.AvatarsTurnDamage {
			if i < len(last.AvatarsTurnDamage) {
				last.AvatarsTurnDamage[i] += d
			}
		}
		last.TotalDamage = sum(last.AvatarsTurnDamage)
	} else {
		bc.AVHistory = append(bc.AVHistory, turn.clone())
	}

	if turn.TotalDamage > 0 {
		e.logger.Debug("turn summary", zap.Float64("total_damage", turn.TotalDamage))
	}

	bc.CurrentTurn.AvatarsTurnDamage = make([]float64, len(bc.AvatarLineup))
	bc.TurnCount++
	return TurnEndPayload{TurnInfo: turn.clone()}, nil
}

func (e *Engine) onEntityDefeated(_ *BattleContext, ev EntityDefeated) (any, error) {
	e.logger.Info("entity defeated",
		zap.Uint32("uid", ev.EntityDefeated.UID),
		zap.Uint32("killer", ev.Killer.UID))
	return ev, nil
}

func (e *Engine) onBattleEnd(bc *BattleContext, _ BattleEnd) (any, error) {
	e.logger.Info("battle ended",
		zap.Float64("total_damage", bc.TotalDamage),
		zap.Float64("av", bc.ActionValue),
		zap.Int("turns", bc.TurnCount))
	return BattleEndPayload{
		Avatars:     append([]Avatar(nil), bc.AvatarLineup...),
		TurnHistory: cloneTurns(bc.TurnHistory),
		AVHistory:   cloneTurns(bc.AVHistory),
		TurnCount:   bc.TurnCount,
		TotalDamage: bc.TotalDamage,
		ActionValue: bc.ActionValue,
		Cycle:       bc.Cycle,
		Wave:        bc.Wave,
		StageID:     bc.StageID,
	}, nil
}

func (e *Engine) onUseSkill(bc *BattleContext, ev UseSkill) (any, error) {
	bc.SkillHistory = append(bc.SkillHistory, SkillHistoryEntry{
		AvatarID:     ev.Avatar.UID,
		SkillName:    ev.Skill.Name,
		SkillType:    ev.Skill.Type,
		TurnBattleID: uint32(len(bc.EntityTurnHistory)),
	})
	e.logger.Debug("skill used",
		zap.Uint32("avatar", ev.Avatar.UID),
		zap.String("skill", ev.Skill.Name),
		zap.Uint32("type", ev.Skill.Type))
	return ev, nil
}

func (e *Engine) onUpdateWave(bc *BattleContext, ev UpdateWave) (any, error) {
	if bc.BattleMode == ModeMOC {
		bc.LastWaveActionValue = bc.ActionValue
	}
	bc.Wave = ev.Wave
	e.logger.Debug("wave", zap.Uint32("wave", ev.Wave))
	return ev, nil
}

func (e *Engine) onUpdateCycle(bc *BattleContext, ev UpdateCycle) (any, error) {
	bc.Cycle = ev.Cycle
	if ev.Cycle > bc.MaxCycle {
		bc.MaxCycle = ev.Cycle
	}
	e.logger.Debug("cycle", zap.Uint32("cycle", ev.Cycle))
	return ev, nil
}

// Unknown entities and stat kinds are ignored.
func (e *Engine) onStatChange(bc *BattleContext, ev StatChange) (any, error) {
	if be := bc.battleEntity(ev.Entity); be != nil {
		ev.Stat.apply(&be.Stats)
	}
	return ev, nil
}

func (e *Engine) onInitializeEnemy(bc *BattleContext, ev InitializeEnemy) (any, error) {
	bc.Enemies = append(bc.Enemies, ev.Enemy)
	bc.BattleEnemies = append(bc.BattleEnemies, BattleEntity{
		Entity: Entity{UID: ev.Enemy.UID, Team: TeamEnemy},
		Stats:  BattleStats{HP: ev.Enemy.BaseStats.HP},
	})
	return ev, nil
}

// Player formation is fixed by the lineup; only enemy updates are stored.
func (e *Engine) onUpdateTeamFormation(bc *BattleContext, ev UpdateTeamFormation) (any, error) {
	if ev.Team == TeamEnemy {
		bc.EnemyLineup = append([]Entity(nil), ev.Entities...)
	}
	return ev, nil
}
