package battle

import (
	"encoding/json"
	"fmt"
)

// BattleMode is the content category a stage belongs to.
type BattleMode int

const (
	ModeOther BattleMode = iota
	ModeMOC
	ModePF
	ModeAS
	ModeAA
)

var modeNames = map[BattleMode]string{
	ModeOther: "Other",
	ModeMOC:   "MOC",
	ModePF:    "PF",
	ModeAS:    "AS",
	ModeAA:    "AA",
}

func (m BattleMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("BattleMode(%d)", int(m))
}

func (m BattleMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Stage ids in this range are Apocalyptic Shadow regardless of the table.
const (
	asStageMin = 420101
	asStageMax = 420999
)

// tableModes are the bucket names the table may define, in lookup order.
var tableModes = []BattleMode{ModeMOC, ModePF, ModeAA}

// Classifier maps stage ids to battle modes. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	buckets map[BattleMode]map[uint32]struct{}
}

// NewClassifier builds a classifier from a mode-name → stage-ids table.
// Bucket names other than MOC, PF and AA are ignored.
func NewClassifier(table map[string][]uint32) *Classifier {
	c := &Classifier{buckets: make(map[BattleMode]map[uint32]struct{})}
	for _, mode := range tableModes {
		ids, ok := table[mode.String()]
		if !ok {
			continue
		}
		set := make(map[uint32]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		c.buckets[mode] = set
	}
	return c
}

func (c *Classifier) Classify(stageID uint32) BattleMode {
	if c != nil {
		for _, mode := range tableModes {
			if _, ok := c.buckets[mode][stageID]; ok {
				return mode
			}
		}
	}
	if stageID >= asStageMin && stageID <= asStageMax {
		return ModeAS
	}
	return ModeOther
}
