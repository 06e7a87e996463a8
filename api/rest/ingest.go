package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlerecorder/game/battle"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"go.uber.org/zap"
)

// maxIngestBody caps one POST /api/ingest body.
const maxIngestBody = 8 << 20

// IngestHandler accepts events over plain HTTP.
type IngestHandler struct {
	engine *battle.Engine
	logger *zap.Logger
}

func NewIngestHandler(engine *battle.Engine, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{engine: engine, logger: logger}
}

// IngestResult is the outcome of one envelope.
type IngestResult struct {
	Seq   uint64 `json:"seq"`
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// Ingest applies a single envelope or an array of envelopes in order.
// POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > maxIngestBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	var envs []battle.Envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &envs)
	} else {
		var env battle.Envelope
		err = json.Unmarshal(trimmed, &env)
		envs = []battle.Envelope{env}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed envelope: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	results := make([]IngestResult, 0, len(envs))
	failed := 0
	for _, env := range envs {
		res := IngestResult{Seq: env.Seq, Type: env.Type}
		if err := h.engine.ApplyRaw(ctx, env.Type, env.Payload); err != nil {
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)
	}
	if failed > 0 {
		mw.WithTrace(c, h.logger).Debug("ingest batch had failures",
			zap.Int("failed", failed), zap.Int("total", len(envs)),
			zap.String("source", mw.GetSource(c)))
	}
	c.JSON(http.StatusOK, gin.H{
		"applied": len(envs) - failed,
		"failed":  failed,
		"results": results,
	})
}
