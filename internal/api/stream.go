package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/runway-sim/internal/rand"
	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/pkg/logger"
)

const streamWriteTimeout = 10 * time.Second

// StreamMessage is one websocket frame of a streamed trial
type StreamMessage struct {
	Type   string             `json:"type"` // "config", "event" or "result"
	Event  *simulation.Event  `json:"event,omitempty"`
	Result *simulation.Result `json:"result,omitempty"`
	Config *simulation.Config `json:"config,omitempty"`
}

// upgrader returns a websocket upgrader that accepts the configured CORS
// origins. Requests without an Origin header do not come from a browser and
// are accepted.
func (h *Handler) upgrader() *websocket.Upgrader {
	allowed := h.config.Server.CORSAllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(allowed, origin)
		},
	}
}

// StreamTrial runs a single trial and streams its frame events over a
// websocket, followed by the final result. Frames are not paced; the client
// decides how to present them.
func (h *Handler) StreamTrial(w http.ResponseWriter, r *http.Request) {
	cfg, seed, err := h.streamTrialConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// detect client disconnects
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := make(chan simulation.Event, 256)
	sim, err := simulation.New(cfg, rand.NewPCG(seed), simulation.NewStreamSink(ctx, events))
	if err != nil {
		h.logger.Error("Failed to create streamed trial", logger.Error(err))
		return
	}

	done := make(chan simulation.Result, 1)
	go func() {
		defer close(events)
		done <- sim.Run()
	}()

	h.logger.Debug("Streaming trial",
		logger.Int64("seed", seed),
		logger.Int("frames", cfg.Frames),
		logger.Int("runways", cfg.Policy.RunwayCount),
		logger.Bool("reprioritization", cfg.Policy.Reprioritization))

	if err := h.writeStream(conn, StreamMessage{Type: "config", Config: &cfg}); err != nil {
		cancel()
	}
	for ev := range events {
		if ctx.Err() != nil {
			continue // drain until the trial finishes
		}
		if err := h.writeStream(conn, StreamMessage{Type: "event", Event: &ev}); err != nil {
			cancel()
		}
	}

	result := <-done
	if ctx.Err() != nil {
		return
	}
	if err := h.writeStream(conn, StreamMessage{Type: "result", Result: &result}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "trial complete"),
		time.Now().Add(time.Second))
}

func (h *Handler) writeStream(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("Stream write failed", logger.Error(err))
		return err
	}
	return nil
}
