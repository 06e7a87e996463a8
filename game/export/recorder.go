package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"go.uber.org/zap"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	SummaryDir string // "" = battle_summaries
	Version    string
	Hooks      *hook.Center // optional
	Logger     *zap.Logger
	Now        func() time.Time // nil = time.Now
}

// SavedSummary is the OnBattleSummary hook payload.
type SavedSummary struct {
	Summary *Summary
	Path    string
}

// Recorder finalizes ended battles: it prepares the export document and
// dataset for pickup and writes the summary file.
type Recorder struct {
	documents Slot[*Document]
	datasets  Slot[[]Row]

	summaryDir string
	version    string
	hooks      *hook.Center
	logger     *zap.Logger
	now        func() time.Time
}

var _ battle.Finalizer = (*Recorder)(nil)

func NewRecorder(cfg RecorderConfig) *Recorder {
	r := &Recorder{
		summaryDir: cfg.SummaryDir,
		version:    cfg.Version,
		hooks:      cfg.Hooks,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if r.summaryDir == "" {
		r.summaryDir = "battle_summaries"
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Recorder) Version() string { return r.version }

// Finalize runs the end-of-battle derivations on a private snapshot. The
// summary is written even when export preparation fails; only the
// preparation error is returned.
func (r *Recorder) Finalize(ctx context.Context, snap *battle.BattleContext) error {
	err := guard(func() error { return r.prepare(snap) })
	if err != nil {
		r.logger.Error("prepare export data", zap.Error(err))
	}
	if serr := guard(func() error { return r.saveSummary(ctx, snap) }); serr != nil {
		r.logger.Error("save battle summary", zap.Error(serr))
	}
	return err
}

func (r *Recorder) prepare(snap *battle.BattleContext) error {
	doc, err := BuildDocument(snap, r.version)
	if err != nil {
		return err
	}
	rows, err := BuildDataset(snap)
	if err != nil {
		return err
	}
	r.documents.Put(doc)
	r.datasets.Put(rows)
	r.logger.Info("export data prepared", zap.Int("rows", len(rows)))
	return nil
}

func (r *Recorder) saveSummary(ctx context.Context, snap *battle.BattleContext) error {
	s, err := BuildSummary(snap, r.now())
	if errors.Is(err, ErrEmptyLineup) {
		r.logger.Warn("lineup is empty, skipping battle summary")
		return nil
	}
	if err != nil {
		return err
	}
	path, err := WriteSummary(r.summaryDir, s)
	if err != nil {
		return err
	}
	r.logger.Info("battle summary saved", zap.String("path", path))

	if r.hooks != nil {
		saved := &SavedSummary{Summary: s, Path: path}
		if _, herr := r.hooks.Trigger(ctx, hook.OnBattleSummary, saved); herr != nil && !errors.Is(herr, hook.ErrInterrupt) {
			r.logger.Warn("battle summary hook", zap.Error(herr))
		}
	}
	return nil
}

// guard turns a panic in fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("export: derivation panicked: %v", p)
		}
	}()
	return fn()
}

// TakePrepared returns and clears the export prepared at the last battle
// end. ok is false when nothing is pending.
func (r *Recorder) TakePrepared() (doc *Document, rows []Row, ok bool) {
	doc, dok := r.documents.Take()
	rows, rok := r.datasets.Take()
	return doc, rows, dok || rok
}
