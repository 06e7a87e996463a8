package battle

// Phase is the lifecycle state of the current battle.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInProgress
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "NotStarted"
	case PhaseInProgress:
		return "InProgress"
	case PhaseEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// transition describes how an event type interacts with the phase. A nil
// from accepts every phase; keep leaves the phase unchanged.
type transition struct {
	from map[Phase]bool
	to   Phase
	keep bool
}

var anyPhase map[Phase]bool

var inProgressOnly = map[Phase]bool{PhaseInProgress: true}

// transitions lists the event types with non-default phase handling.
// Everything else is accepted only while in progress and keeps the phase.
var transitions = map[string]transition{
	EventSetLineup:   {from: anyPhase, to: PhaseInProgress},
	EventBattleBegin: {from: anyPhase, keep: true},
	EventBattleEnd:   {from: inProgressOnly, to: PhaseEnded},
}

func transitionFor(eventType string) transition {
	if t, ok := transitions[eventType]; ok {
		return t
	}
	return transition{from: inProgressOnly, keep: true}
}

// Accepts reports whether an event of the given type may be applied in p.
func (p Phase) Accepts(eventType string) bool {
	t := transitionFor(eventType)
	return t.from == nil || t.from[p]
}

// Next returns the phase after applying an accepted event.
func (p Phase) Next(eventType string) Phase {
	t := transitionFor(eventType)
	if t.keep {
		return p
	}
	return t.to
}
