package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"windview/internal/domain"
	"windview/internal/elevation"
	"windview/internal/visibility"
)

const (
	// maxTargetsPerObserve bounds the work one message can request
	maxTargetsPerObserve = 50
	// observeQueueSize is how many observe requests a client may have
	// waiting behind the one being computed.
	observeQueueSize = 4
)

type WSHandler struct {
	calc   *visibility.Calculator
	logger *slog.Logger
}

func NewWSHandler(calc *visibility.Calculator, logger *slog.Logger) *WSHandler {
	return &WSHandler{calc: calc, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ObserveTarget struct {
	ID     string          `json:"id"`
	Point  domain.GeoPoint `json:"point"`
	Height float64         `json:"height"`
}

type ObservePayload struct {
	Observer domain.GeoPoint `json:"observer"`
	Targets  []ObserveTarget `json:"targets"`
	Samples  int             `json:"samples,omitempty"`
	// Options overrides individual fields of the calculator defaults.
	Options json.RawMessage `json:"options,omitempty"`
}

type VisibilityMessage struct {
	Type    string            `json:"type"`
	Payload VisibilityPayload `json:"payload"`
}

type VisibilityPayload struct {
	ID     string                   `json:"id"`
	Result *domain.VisibilityResult `json:"result,omitempty"`
	// Status is "indeterminate" when no elevation data could be obtained
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type observeJob struct {
	payload ObservePayload
	opts    visibility.Options
}

type wsClient struct {
	ID      string
	Send    chan []byte
	observe chan observeJob
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := &wsClient{
		ID:      uuid.New().String(),
		Send:    make(chan []byte, 256),
		observe: make(chan observeJob, observeQueueSize),
	}
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()
	h.logger.Debug("client connected", "client_id", client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)
	go h.observeLoop(ctx, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		ServerStats.IncWSMessagesIn()

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "observe":
			job, err := h.decodeObserve(msg.Payload)
			if err != nil {
				h.logger.Debug("invalid observe payload", "client_id", client.ID, "error", err)
				h.send(client, ErrorMessage{Type: "error", Error: "invalid observe payload"})
				continue
			}
			// computed off the read loop so control frames keep flowing
			select {
			case client.observe <- job:
			default:
				h.logger.Warn("observe rejected, queue full", "client_id", client.ID)
				h.send(client, ErrorMessage{Type: "error", Error: "too many pending observe requests"})
			}

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

// decodeObserve applies the client's options on top of a copy of the
// calculator defaults, so omitted fields keep their configured values.
func (h *WSHandler) decodeObserve(raw json.RawMessage) (observeJob, error) {
	job := observeJob{opts: h.calc.DefaultOptions()}
	if err := json.Unmarshal(raw, &job.payload); err != nil {
		return observeJob{}, err
	}
	if len(job.payload.Options) > 0 {
		if err := json.Unmarshal(job.payload.Options, &job.opts); err != nil {
			return observeJob{}, err
		}
	}
	return job, nil
}

// observeLoop runs one client's observe requests one at a time.
func (h *WSHandler) observeLoop(ctx context.Context, client *wsClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-client.observe:
			h.observe(ctx, client, job)
		}
	}
}

// observe answers each target in order with one visibility message.
func (h *WSHandler) observe(ctx context.Context, client *wsClient, job observeJob) {
	payload := job.payload
	targets := payload.Targets
	if len(targets) > maxTargetsPerObserve {
		h.logger.Warn("observe truncated", "client_id", client.ID, "targets", len(targets))
		targets = targets[:maxTargetsPerObserve]
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}

		res, err := h.calc.ComputeVisibility(ctx, visibility.Request{
			Observer:     payload.Observer,
			Target:       t.Point,
			TargetHeight: t.Height,
			SampleCount:  payload.Samples,
			Options:      &job.opts,
		})

		out := VisibilityPayload{ID: t.ID}
		switch {
		case err == nil:
			out.Result = &res
		case errors.Is(err, elevation.ErrProfileUnavailable):
			out.Status = "indeterminate"
			out.Error = "elevation data unavailable"
		default:
			out.Error = err.Error()
		}
		h.send(client, VisibilityMessage{Type: "visibility", Payload: out})
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-client.Send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) send(client *wsClient, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("dropping message, buffer full", "client_id", client.ID)
	}
}
