package model

import (
	"time"

	"gorm.io/datatypes"
)

// BattleRecord is one finished battle, written after its summary file.
type BattleRecord struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	BattleID    string         `gorm:"uniqueIndex;size:36;not null" json:"battle_id"`
	TeamName    string         `gorm:"index:idx_record_team;size:64" json:"team_name"`
	Mode        string         `gorm:"index:idx_record_mode;size:16" json:"mode"`
	StageID     uint32         `gorm:"index:idx_record_stage" json:"stage_id"`
	TotalDamage float64        `json:"total_damage"`
	TotalAV     float64        `json:"total_av"`
	TotalDPAV   float64        `gorm:"index:idx_record_dpav" json:"total_dpav"`
	Turns       int            `json:"turns"`
	SummaryPath string         `gorm:"size:255" json:"summary_path"`
	Summary     datatypes.JSON `json:"summary"`
	CreatedAt   time.Time      `gorm:"index:idx_record_created;autoCreateTime:milli" json:"created_at"`
}
