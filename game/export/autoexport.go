package export

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AutoExporter writes prepared exports to disk as they appear.
type AutoExporter struct {
	rec         *Recorder
	dir         string
	prefix      string
	dateFolders bool
	logger      *zap.Logger
	now         func() time.Time
}

func NewAutoExporter(rec *Recorder, dir, prefix string, dateFolders bool, logger *zap.Logger) *AutoExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoExporter{
		rec:         rec,
		dir:         dir,
		prefix:      prefix,
		dateFolders: dateFolders,
		logger:      logger,
		now:         time.Now,
	}
}

// Run claims any prepared export and writes it as JSON and CSV. It returns
// the written paths; nothing pending is not an error.
func (a *AutoExporter) Run(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, rows, ok := a.rec.TakePrepared()
	if !ok {
		return nil, nil
	}
	now := a.now()
	opts := FileOptions{Dir: a.dir, DateFolders: a.dateFolders, Prefix: a.prefix}

	var paths []string
	if doc != nil {
		path, err := SaveDocument(doc, opts, now)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if rows != nil {
		path, err := SaveDataset(rows, opts, now)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	a.logger.Info("battle exported", zap.Strings("paths", paths))
	return paths, nil
}
