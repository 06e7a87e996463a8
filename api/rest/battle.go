package rest

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/game/export"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"go.uber.org/zap"
)

// ExportSettings are the configured export defaults.
type ExportSettings struct {
	Dir         string
	Prefix      string
	DateFolders bool
}

// BattleHandler serves the live battle state and on-demand exports.
type BattleHandler struct {
	engine   *battle.Engine
	rec      *export.Recorder
	settings ExportSettings
	logger   *zap.Logger
	now      func() time.Time
}

func NewBattleHandler(engine *battle.Engine, rec *export.Recorder, settings ExportSettings, logger *zap.Logger) *BattleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleHandler{engine: engine, rec: rec, settings: settings, logger: logger, now: time.Now}
}

// View returns the live battle view.
// GET /api/battle
func (h *BattleHandler) View(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Store().View())
}

// History returns the closed turns of the current battle.
// GET /api/battle/history
func (h *BattleHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Store().History())
}

// Download derives an export from the current state and streams it.
// GET /api/battle/export?format=json|csv
func (h *BattleHandler) Download(c *gin.Context) {
	format := c.DefaultQuery("format", export.FormatJSON)
	snap := h.engine.Store().Snapshot()

	var (
		buf         bytes.Buffer
		contentType string
		err         error
	)
	switch format {
	case export.FormatJSON:
		var doc *export.Document
		if doc, err = export.BuildDocument(snap, h.rec.Version()); err == nil {
			err = export.EncodeJSON(&buf, doc)
		}
		contentType = "application/json"
	case export.FormatCSV:
		var rows []export.Row
		if rows, err = export.BuildDataset(snap); err == nil {
			err = export.EncodeCSV(&buf, rows)
		}
		contentType = "text/csv"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", format)})
		return
	}
	if err != nil {
		h.exportFailed(c, err)
		return
	}
	name := export.DefaultFilename(h.settings.Prefix, format, h.now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

type saveRequest struct {
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	DateFolders *bool  `json:"date_folders"`
	Overwrite   bool   `json:"overwrite"`
}

// Save derives an export from the current state and writes it under the
// configured export directory. A non-empty body must be JSON.
// POST /api/battle/export
func (h *BattleHandler) Save(c *gin.Context) {
	var req saveRequest
	if c.Request.ContentLength != 0 {
		if c.ContentType() != binding.MIMEJSON {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be " + binding.MIMEJSON})
			return
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	opts := export.FileOptions{
		Format:      req.Format,
		Filename:    req.Filename,
		Dir:         h.settings.Dir,
		DateFolders: h.settings.DateFolders,
		Prefix:      h.settings.Prefix,
		Overwrite:   req.Overwrite,
	}
	if req.DateFolders != nil {
		opts.DateFolders = *req.DateFolders
	}

	path, err := export.SaveSnapshot(h.engine.Store().Snapshot(), h.rec.Version(), opts, h.now())
	if err != nil {
		h.exportFailed(c, err)
		return
	}
	mw.WithTrace(c, h.logger).Info("battle exported", zap.String("path", path))
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// Prepared hands out the export prepared at the last battle end, once.
// GET /api/battle/prepared
func (h *BattleHandler) Prepared(c *gin.Context) {
	doc, rows, ok := h.rec.TakePrepared()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc, "dataset": rows})
}

func (h *BattleHandler) exportFailed(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, export.ErrUnknownFormat):
		status = http.StatusBadRequest
	case errors.Is(err, battle.ErrInconsistentSnapshot), errors.Is(err, export.ErrExists):
		status = http.StatusConflict
	}
	mw.WithTrace(c, h.logger).Error("battle export failed", zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
