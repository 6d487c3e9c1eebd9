package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/report"
	"github.com/talgya/agrisim/internal/runner"
)

const streamWriteTimeout = 5 * time.Second

// streamMessage is one websocket frame. Type is "step", "summary" or "error".
type streamMessage struct {
	Type    string             `json:"type"`
	Step    *entity.StepResult `json:"step,omitempty"`
	Summary *report.Summary    `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// handleStream runs a scenario and pushes every step result over a websocket
// as it is produced, followed by a summary frame. Streamed runs are not stored;
// stored runs go through the admin-only /simulate.
// GET /api/v1/stream?scenario=...&start_date=...&end_date=...&seed=...&farmers=...
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	p, err := paramsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := s.buildRequest(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.streamConns, 1)
	if current > maxStreamConns {
		atomic.AddInt32(&s.streamConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.streamConns, -1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: the client sends nothing, but reading surfaces its close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	slog.Info("stream client connected", "scenario", req.Scenario, "remote", r.RemoteAddr)

	send := func(m streamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(m)
	}

	out, err := runner.New(nil).Run(ctx, req, func(step entity.StepResult) {
		if ctx.Err() != nil {
			return
		}
		if err := send(streamMessage{Type: "step", Step: &step}); err != nil {
			cancel()
		}
	})
	if err != nil {
		if ctx.Err() == nil {
			_ = send(streamMessage{Type: "error", Error: err.Error()})
		}
		slog.Info("stream ended early", "scenario", req.Scenario, "error", err)
		return
	}

	summary := report.Summarize(string(out.Scenario), out.Config.Start, out.Config.End, len(out.Entities.Farmers), out.Results)
	if err := send(streamMessage{Type: "summary", Summary: &summary}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"),
		time.Now().Add(time.Second))

	slog.Info("stream client done", "scenario", out.Scenario, "steps", len(out.Results))
}
