package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/kasuganosora/battlerecorder/game/battle"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	DefaultPrefix = "battlerecorder_battledata"
	appDirName    = "battlerecorder"
	dataDirName   = "battledata"
	dateLayout    = "2006-01-02"
)

var (
	// ErrUnknownFormat is returned for formats other than json and csv.
	ErrUnknownFormat = errors.New("export: unknown format")
	// ErrExists is returned when the target file is already present and
	// overwriting was not requested.
	ErrExists = errors.New("export: file already exists")
)

// Columns is the CSV header: the union of both row kinds.
var Columns = []string{
	"data_type", "character_name", "character_id",
	"total_damage", "damage_percentage", "dpav", "primary_skill_usage_count",
	"turns_taken", "average_damage_per_turn", "max_single_turn_damage",
	"first_turn_number", "last_turn_number",
	"turn_order", "turn_battle_id", "wave", "cycle", "action_value",
	"skill_name", "skill_type", "skill_type_name", "skill_damage",
	"cumulative_damage", "cumulative_character_damage", "skill_damage_percentage",
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtUint(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func fmtString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (r Row) record() []string {
	return []string{
		r.DataType, r.CharacterName, strconv.FormatUint(uint64(r.CharacterID), 10),
		fmtFloat(r.TotalDamage), fmtFloat(r.DamagePercentage), fmtFloat(r.DPAV), fmtUint(r.PrimarySkillUsageCount),
		fmtUint(r.TurnsTaken), fmtFloat(r.AverageDamagePerTurn), fmtFloat(r.MaxSingleTurnDamage),
		fmtUint(r.FirstTurnNumber), fmtUint(r.LastTurnNumber),
		fmtUint(r.TurnOrder), fmtUint(r.TurnBattleID), fmtUint(r.Wave), fmtUint(r.Cycle), fmtFloat(r.ActionValue),
		fmtString(r.SkillName), fmtUint(r.SkillType), fmtString(r.SkillTypeName), fmtFloat(r.SkillDamage),
		fmtFloat(r.CumulativeDamage), fmtFloat(r.CumulativeCharacterDamage), fmtFloat(r.SkillDamagePercentage),
	}
}

// EncodeCSV writes the header and one line per row.
func EncodeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeJSON writes v as indented JSON.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func WriteJSON(path string, v any, overwrite bool) error {
	return writeFile(path, overwrite, func(w io.Writer) error { return EncodeJSON(w, v) })
}

func WriteCSV(path string, rows []Row, overwrite bool) error {
	return writeFile(path, overwrite, func(w io.Writer) error { return EncodeCSV(w, rows) })
}

func writeFile(path string, overwrite bool, encode func(io.Writer) error) (err error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrExists, filepath.Base(path))
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return encode(f)
}

// ExportDir resolves and creates the export directory: custom if set,
// otherwise <XDG data home>/battlerecorder/battledata, with a YYYY-MM-DD
// folder appended when dateFolders is on.
func ExportDir(custom string, dateFolders bool, now time.Time) (string, error) {
	base := custom
	if base == "" {
		base = filepath.Join(xdg.DataHome, appDirName, dataDirName)
	}
	if dateFolders {
		base = filepath.Join(base, now.UTC().Format(dateLayout))
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	return base, nil
}

// DefaultFilename returns <prefix>_<unix>.<ext>.
func DefaultFilename(prefix, ext string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%d.%s", prefix, now.Unix(), ext)
}

// FileOptions controls an export written to disk.
type FileOptions struct {
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	Dir         string `json:"-"`
	DateFolders bool   `json:"date_folders"`
	Prefix      string `json:"-"`
	// Overwrite replaces an existing file instead of failing with ErrExists.
	Overwrite bool `json:"overwrite"`
}

// SaveSnapshot derives the requested format from snap and writes it to
// disk, returning the file path.
func SaveSnapshot(snap *battle.BattleContext, version string, opts FileOptions, now time.Time) (string, error) {
	switch opts.Format {
	case "", FormatJSON:
		doc, err := BuildDocument(snap, version)
		if err != nil {
			return "", err
		}
		return SaveDocument(doc, opts, now)
	case FormatCSV:
		rows, err := BuildDataset(snap)
		if err != nil {
			return "", err
		}
		return SaveDataset(rows, opts, now)
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, opts.Format)
	}
}

func SaveDocument(doc *Document, opts FileOptions, now time.Time) (string, error) {
	path, err := targetPath(opts, FormatJSON, now)
	if err != nil {
		return "", err
	}
	return path, WriteJSON(path, doc, opts.Overwrite)
}

func SaveDataset(rows []Row, opts FileOptions, now time.Time) (string, error) {
	path, err := targetPath(opts, FormatCSV, now)
	if err != nil {
		return "", err
	}
	return path, WriteCSV(path, rows, opts.Overwrite)
}

func targetPath(opts FileOptions, ext string, now time.Time) (string, error) {
	dir, err := ExportDir(opts.Dir, opts.DateFolders, now)
	if err != nil {
		return "", err
	}
	name := opts.Filename
	if name == "" {
		name = DefaultFilename(opts.Prefix, ext, now)
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}
