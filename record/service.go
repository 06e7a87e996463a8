package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/battlerecorder/cache"
	"github.com/kasuganosora/battlerecorder/game/export"
	"github.com/kasuganosora/battlerecorder/model"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Cache keys.
const (
	KeyLatestSummary = "summary:latest"
	KeyDPAVRanking   = "ranking:dpav"
)

// RankingSize is how many entries the DPAV ranking keeps.
const RankingSize = 100

// ErrNoSummary means no battle has been recorded yet.
var ErrNoSummary = errors.New("record: no battle summary")

// RankEntry is one DPAV ranking entry. It is stored as the sorted-set
// member so the ranking can be served without a DB read.
type RankEntry struct {
	BattleID  string  `json:"battle_id"`
	TeamName  string  `json:"team_name"`
	Mode      string  `json:"mode"`
	StageID   uint32  `json:"stage_id"`
	TotalDPAV float64 `json:"total_dpav"`
}

// Options tunes the background writer.
type Options struct {
	QueueSize     int           // 0 = 1024
	BatchSize     int           // 0 = 100
	FlushInterval time.Duration // 0 = 2s
}

// Service persists finished battles: rows are written to the DB in batches
// and the cache keeps the latest summary and the DPAV ranking.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	ch     chan *model.BattleRecord
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger

	batchSize     int
	flushInterval time.Duration
}

// New creates a Service and starts its background worker. c may be nil.
func New(db *gorm.DB, c cache.Cache, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	svc := &Service{
		db:            db,
		cache:         c,
		ch:            make(chan *model.BattleRecord, opts.QueueSize),
		stopCh:        make(chan struct{}),
		logger:        logger,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Register hooks the service onto OnBattleSummary.
func (svc *Service) Register(hooks *hook.Center) {
	hooks.Register(hook.OnBattleSummary, 100, "record", func(ctx context.Context, _ string, data any) (any, error) {
		saved, ok := data.(*export.SavedSummary)
		if !ok || saved == nil || saved.Summary == nil {
			return data, nil
		}
		return data, svc.Record(ctx, saved)
	})
}

// Record enqueues the battle for the DB and updates the cache right away.
func (svc *Service) Record(ctx context.Context, saved *export.SavedSummary) error {
	s := saved.Summary
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	rec := &model.BattleRecord{
		BattleID:    uuid.NewString(),
		TeamName:    s.TeamName,
		Mode:        s.Mode.String(),
		StageID:     s.StageID,
		TotalDamage: s.TotalDamage,
		TotalAV:     s.TotalAV,
		TotalDPAV:   s.TotalDPAV,
		Turns:       len(s.TurnHistory),
		SummaryPath: saved.Path,
		Summary:     datatypes.JSON(raw),
	}

	select {
	case svc.ch <- rec:
	default:
		svc.logger.Warn("record queue full, dropping battle",
			zap.String("team", rec.TeamName))
	}

	if svc.cache == nil {
		return nil
	}
	var errs []error
	if err := svc.cache.Set(ctx, KeyLatestSummary, string(raw), 0); err != nil {
		errs = append(errs, fmt.Errorf("cache latest summary: %w", err))
	}
	member, err := rankMember(rec)
	if err != nil {
		errs = append(errs, err)
	} else if err := svc.cache.ZAdd(ctx, KeyDPAVRanking, rec.TotalDPAV, member); err != nil {
		errs = append(errs, fmt.Errorf("cache ranking: %w", err))
	} else if err := svc.cache.ZKeepTop(ctx, KeyDPAVRanking, RankingSize); err != nil {
		errs = append(errs, fmt.Errorf("trim ranking: %w", err))
	}
	return errors.Join(errs...)
}

func rankMember(rec *model.BattleRecord) (string, error) {
	b, err := json.Marshal(RankEntry{
		BattleID:  rec.BattleID,
		TeamName:  rec.TeamName,
		Mode:      rec.Mode,
		StageID:   rec.StageID,
		TotalDPAV: rec.TotalDPAV,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ranking entry: %w", err)
	}
	return string(b), nil
}

// Recent returns the newest persisted records first.
func (svc *Service) Recent(ctx context.Context, limit int) ([]model.BattleRecord, error) {
	var recs []model.BattleRecord
	err := svc.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&recs).Error
	return recs, err
}

// Top returns the DPAV ranking from the cache, falling back to the DB when
// the cache is absent, failing or empty.
func (svc *Service) Top(ctx context.Context, limit int) ([]RankEntry, error) {
	limit = clampLimit(limit)
	if svc.cache != nil {
		members, err := svc.cache.ZRevRange(ctx, KeyDPAVRanking, 0, int64(limit-1))
		if err != nil {
			svc.logger.Warn("read dpav ranking from cache", zap.Error(err))
		}
		if len(members) > 0 {
			out := make([]RankEntry, 0, len(members))
			for _, m := range members {
				var e RankEntry
				if err := json.Unmarshal([]byte(m.Member), &e); err != nil {
					svc.logger.Warn("bad ranking member", zap.String("member", m.Member), zap.Error(err))
					continue
				}
				e.TotalDPAV = m.Score
				out = append(out, e)
			}
			return out, nil
		}
	}

	var recs []model.BattleRecord
	if err := svc.db.WithContext(ctx).
		Order("total_dpav DESC").Order("id ASC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]RankEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, RankEntry{
			BattleID:  r.BattleID,
			TeamName:  r.TeamName,
			Mode:      r.Mode,
			StageID:   r.StageID,
			TotalDPAV: r.TotalDPAV,
		})
	}
	return out, nil
}

// Latest returns the last summary JSON, from the cache or else the DB.
func (svc *Service) Latest(ctx context.Context) (json.RawMessage, error) {
	if svc.cache != nil {
		v, err := svc.cache.Get(ctx, KeyLatestSummary)
		if err == nil {
			return json.RawMessage(v), nil
		}
		if !cache.IsNotFound(err) {
			svc.logger.Warn("read latest summary from cache", zap.Error(err))
		}
	}
	var rec model.BattleRecord
	err := svc.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSummary
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(rec.Summary), nil
}

// Stop flushes queued records and shuts down the worker. It blocks until
// the worker has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.flushInterval)
	defer ticker.Stop()

	batch := make([]*model.BattleRecord, 0, svc.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("battle record batch write failed",
				zap.Int("count", len(batch)), zap.Error(err))
		} else {
			svc.logger.Debug("battle records written", zap.Int("count", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-svc.ch:
			batch = append(batch, rec)
			if len(batch) >= svc.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case rec := <-svc.ch:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 20
	case n > RankingSize:
		return RankingSize
	}
	return n
}
