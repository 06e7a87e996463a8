package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kasuganosora/battlerecorder/game/battle"
)

// TimestampLayout formats summary timestamps.
const TimestampLayout = "20060102_150405"

// ErrEmptyLineup means there is no team to summarize.
var ErrEmptyLineup = errors.New("export: lineup is empty")

type CharacterSummary struct {
	TotalDamage float64 `json:"total_damage"`
	DPAV        float64 `json:"dpav"`
}

// Summary is the per-battle file written on battle end. Mode and StageID
// only feed the filename and the battle record.
type Summary struct {
	TeamName      string                      `json:"team_name"`
	Lineup        []string                    `json:"lineup"`
	LineupDetails []battle.Avatar             `json:"lineup_details"`
	Timestamp     string                      `json:"timestamp"`
	TotalDamage   float64                     `json:"total_damage"`
	TotalAV       float64                     `json:"total_av"`
	TotalDPAV     float64                     `json:"total_dpav"`
	Characters    map[string]CharacterSummary `json:"characters"`
	TurnHistory   []battle.TurnInfo           `json:"turn_history"`
	AVHistory     []battle.TurnInfo           `json:"av_history"`

	Mode    battle.BattleMode `json:"-"`
	StageID uint32            `json:"-"`
}

func BuildSummary(snap *battle.BattleContext, now time.Time) (*Summary, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}
	if len(snap.AvatarLineup) == 0 {
		return nil, ErrEmptyLineup
	}

	av := snap.ActionValue
	s := &Summary{
		TeamName:      snap.AvatarLineup[0].Name,
		Lineup:        make([]string, 0, len(snap.AvatarLineup)),
		LineupDetails: append([]battle.Avatar(nil), snap.AvatarLineup...),
		Timestamp:     now.Format(TimestampLayout),
		TotalDamage:   snap.TotalDamage,
		TotalAV:       av,
		TotalDPAV:     battle.PerActionValue(snap.TotalDamage, av),
		Characters:    make(map[string]CharacterSummary, len(snap.AvatarLineup)),
		TurnHistory:   snap.TurnHistory,
		AVHistory:     snap.AVHistory,
		Mode:          snap.BattleMode,
		StageID:       snap.StageID,
	}
	if s.TurnHistory == nil {
		s.TurnHistory = []battle.TurnInfo{}
	}
	if s.AVHistory == nil {
		s.AVHistory = []battle.TurnInfo{}
	}
	for i, a := range snap.AvatarLineup {
		dmg := snap.RealTimeDamages[i]
		s.Lineup = append(s.Lineup, a.Name)
		s.Characters[a.Name] = CharacterSummary{
			TotalDamage: dmg,
			DPAV:        battle.PerActionValue(dmg, av),
		}
	}
	return s, nil
}

var unsafeName = strings.NewReplacer("/", "_", `\`, "_", ":", "_")

// Filename returns SUMMARY_{team}_{mode}_Stage{stage}_{timestamp}.json.
func (s *Summary) Filename() string {
	return fmt.Sprintf("SUMMARY_%s_%s_Stage%d_%s.json",
		unsafeName.Replace(s.TeamName), s.Mode, s.StageID, s.Timestamp)
}

// WriteSummary writes s under dir, creating it if needed, and returns the
// file path.
func WriteSummary(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create summary dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(dir, s.Filename())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write summary %s: %w", path, err)
	}
	return path, nil
}
