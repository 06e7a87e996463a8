package resource

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// BattleModes maps a mode name ("MOC", "PF", "AA") to its stage ids.
type BattleModes map[string][]uint32

func loadJSONObject[T any](path string, out *T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resource: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return nil
}

// LoadBattleModes reads the battle-mode table from a JSON object file.
func LoadBattleModes(path string) (BattleModes, error) {
	modes := BattleModes{}
	if err := loadJSONObject(path, &modes); err != nil {
		return nil, err
	}
	return modes, nil
}

// LoadBattleModesOrEmpty is LoadBattleModes that logs failures and returns
// an empty table. Stages in the built-in AS range still classify as AS;
// every other stage classifies as Other.
func LoadBattleModesOrEmpty(path string, logger *zap.Logger) BattleModes {
	if logger == nil {
		logger = zap.NewNop()
	}
	modes, err := LoadBattleModes(path)
	if err != nil {
		logger.Error("could not load battle modes, falling back to default mode",
			zap.String("path", path), zap.Error(err))
		return BattleModes{}
	}
	n := 0
	for _, ids := range modes {
		n += len(ids)
	}
	logger.Info("battle modes loaded", zap.Int("modes", len(modes)), zap.Int("stages", n))
	return modes
}
