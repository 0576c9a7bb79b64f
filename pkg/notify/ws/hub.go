// Package ws fans workflow notifications out to WebSocket clients grouped in per-workflow rooms.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/ratelimit"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var ErrMissingWorkflowID = errors.New("workflow_id query parameter is required")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps the WebSocket clients of every workflow room.
type Hub struct {
	logger   *slog.Logger
	reporter *ratelimit.Reporter

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub(logger *slog.Logger, reporter *ratelimit.Reporter) *Hub {
	if reporter == nil {
		reporter = ratelimit.NewReporter(ratelimit.DefaultCooldown)
	}

	return &Hub{
		logger:   logger.With("module", "ws_hub"),
		reporter: reporter,
		rooms:    make(map[string]map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and joins the room named by ?workflow_id=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	if workflowID == "" {
		http.Error(w, ErrMissingWorkflowID.Error(), http.StatusBadRequest)

		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)

		return
	}

	c := &client{conn: conn}
	h.join(workflowID, c)

	go func() {
		defer func() {
			h.leave(workflowID, c)
			_ = conn.Close()
		}()

		// Clients only listen; reading drives ping/pong and close detection.
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read error", "workflow_id", workflowID, "error", err)
				}

				return
			}
		}
	}()
}

func (h *Hub) join(workflowID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[workflowID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[workflowID] = room
	}

	room[c] = struct{}{}
}

func (h *Hub) leave(workflowID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[workflowID]
	if !ok {
		return
	}

	delete(room, c)

	if len(room) == 0 {
		delete(h.rooms, workflowID)
	}
}

// RoomSize returns the number of clients listening to a workflow.
func (h *Hub) RoomSize(workflowID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[workflowID])
}

// Broadcast writes event to every client of its workflow room. Clients that
// fail to receive it are dropped and the joined error is returned.
func (h *Hub) Broadcast(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	room := h.rooms[event.GetWorkflowID()]
	clients := make([]*client, 0, len(room))

	for c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var errs []error

	for _, c := range clients {
		err := c.write(payload)
		if err != nil {
			errs = append(errs, err)

			h.leave(event.GetWorkflowID(), c)
			_ = c.conn.Close()
		}
	}

	return errors.Join(errs...)
}

// Handle is an event bus handler. Delivery is best effort, so failures are
// logged through the reporter and never cause redelivery.
func (h *Hub) Handle(ctx context.Context, event events.Event) error {
	err := h.Broadcast(ctx, event)
	if err != nil && h.reporter.ShouldLog("ws:"+event.GetWorkflowID()) {
		h.logger.WarnContext(ctx, "failed to push notification to websocket clients",
			"workflow_id", event.GetWorkflowID(),
			"event_type", event.GetType(),
			"error", err,
		)
	}

	return nil
}
