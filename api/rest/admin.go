package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlerecorder/broadcast"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/scheduler"
)

// SubscriberCounter reports connected packet subscribers.
type SubscriberCounter interface {
	Count() int
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the AdminKey middleware.
type AdminHandler struct {
	engine      *battle.Engine
	sink        *broadcast.Sink
	sched       *scheduler.Scheduler
	subscribers []SubscriberCounter
}

func NewAdminHandler(engine *battle.Engine, sink *broadcast.Sink, sched *scheduler.Scheduler, subscribers ...SubscriberCounter) *AdminHandler {
	return &AdminHandler{engine: engine, sink: sink, sched: sched, subscribers: subscribers}
}

// Metrics returns recorder health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	subs := 0
	for _, s := range h.subscribers {
		subs += s.Count()
	}
	resp := gin.H{
		"phase":       h.engine.Store().Phase(),
		"events":      h.engine.Stats(),
		"subscribers": subs,
	}
	if h.sink != nil {
		resp["broadcast"] = gin.H{
			"published":  h.sink.Published(),
			"suppressed": h.sink.Suppressed(),
			"dropped":    h.sink.Dropped(),
		}
	}
	if h.sched != nil {
		resp["scheduler_tasks"] = h.sched.Tasks()
	}
	c.JSON(http.StatusOK, resp)
}
