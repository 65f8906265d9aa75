package httpapi

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
)

type HealthHandler struct {
	DB         *sql.DB
	PollStatus func() types.ScrapeStatus
	Queues     []func() dispatch.QueueStats
	Runner     Runner
}

type healthResponse struct {
	OK       bool                  `json:"ok"`
	Time     string                `json:"time"`
	DB       string                `json:"db"`
	Poll     *types.ScrapeStatus   `json:"poll,omitempty"`
	Queues   []dispatch.QueueStats `json:"queues,omitempty"`
	InFlight []int64               `json:"in_flight"`
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true, Time: time.Now().UTC().Format(time.RFC3339), DB: "ok", InFlight: []int64{}}

	if err := h.DB.PingContext(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
	}
	if h.PollStatus != nil {
		st := h.PollStatus()
		resp.Poll = &st
	}
	for _, q := range h.Queues {
		resp.Queues = append(resp.Queues, q())
	}
	if h.Runner != nil {
		resp.InFlight = h.Runner.InFlight()
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
