package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"github.com/kasuganosora/battlerecorder/record"
	"go.uber.org/zap"
)

// SummaryHandler serves recorded battles.
type SummaryHandler struct {
	svc    *record.Service
	logger *zap.Logger
}

func NewSummaryHandler(svc *record.Service, logger *zap.Logger) *SummaryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryHandler{svc: svc, logger: logger}
}

func limitParam(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

// List returns recent battle records, newest first.
// GET /api/summaries?limit=20
func (h *SummaryHandler) List(c *gin.Context) {
	recs, err := h.svc.Recent(c.Request.Context(), limitParam(c))
	if err != nil {
		mw.WithTrace(c, h.logger).Error("list battle records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": recs})
}

// Top returns the DPAV ranking.
// GET /api/summaries/top?limit=20
func (h *SummaryHandler) Top(c *gin.Context) {
	entries, err := h.svc.Top(c.Request.Context(), limitParam(c))
	if err != nil {
		mw.WithTrace(c, h.logger).Error("dpav ranking", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	type ranked struct {
		Rank int `json:"rank"`
		record.RankEntry
	}
	out := make([]ranked, len(entries))
	for i, e := range entries {
		out[i] = ranked{Rank: i + 1, RankEntry: e}
	}
	c.JSON(http.StatusOK, gin.H{"ranking": out})
}

// Latest returns the most recent battle summary.
// GET /api/summaries/latest
func (h *SummaryHandler) Latest(c *gin.Context) {
	raw, err := h.svc.Latest(c.Request.Context())
	if errors.Is(err, record.ErrNoSummary) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no battle recorded yet"})
		return
	}
	if err != nil {
		mw.WithTrace(c, h.logger).Error("latest summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
