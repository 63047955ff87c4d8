package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

const (
	writeWait   = 10 * time.Second
	eventBuffer = 64

	// terminalGrace is how long the run's final event is held back so step
	// events still in flight on another topic are forwarded ahead of it
	terminalGrace = 200 * time.Millisecond
)

// Message types
const (
	MessageSnapshot = "snapshot"
	MessageEvent    = "event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame sent to the client
type Message struct {
	Type  string            `json:"type"`
	Run   *domain.RunRecord `json:"run,omitempty"`
	Event *domain.Event     `json:"event,omitempty"`
}

// RunSource looks up run records
type RunSource interface {
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	runs     RunSource
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, runs RunSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		eventBus: eventBus,
		runs:     runs,
		logger:   logger,
	}
}

// HandleRunStream streams the events of one run
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	if _, err := h.runs.GetRun(c.Request.Context(), runID); err != nil {
		status := http.StatusInternalServerError
		code := "INTERNAL_ERROR"
		if errors.Is(err, ports.ErrRunNotFound) {
			status = http.StatusNotFound
			code = "NOT_FOUND"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	logger := h.logger.With(zap.String("run_id", runID))
	logger.Info("WebSocket connection established", zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client only ever closes; reading detects it
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := make(chan domain.Event, eventBuffer)
	h.subscribe(ctx, runID, events, logger)

	// Subscribe before the snapshot so no transition falls in between
	rec, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		logger.Error("failed to load run", zap.Error(err))
		return
	}
	if err := h.write(conn, Message{Type: MessageSnapshot, Run: rec}); err != nil {
		logger.Debug("failed to write snapshot", zap.Error(err))
		return
	}
	if rec.Status.IsTerminal() {
		h.close(conn)
		return
	}

	var terminal *domain.Event
	var grace <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-grace:
			if err := h.write(conn, Message{Type: MessageEvent, Event: terminal}); err != nil {
				logger.Debug("failed to write event", zap.Error(err))
				return
			}
			h.close(conn)
			logger.Info("run finished, closing stream")
			return
		case event := <-events:
			if event.Type.IsRunTerminal() {
				if terminal == nil {
					terminal = &event
					grace = time.After(terminalGrace)
				}
				continue
			}
			if err := h.write(conn, Message{Type: MessageEvent, Event: &event}); err != nil {
				logger.Debug("failed to write event", zap.Error(err))
				return
			}
		}
	}
}

// subscribe forwards the run's events to ch until ctx is cancelled
func (h *Handler) subscribe(ctx context.Context, runID string, ch chan<- domain.Event, logger *zap.Logger) {
	handler := func(_ context.Context, event domain.Event) error {
		if event.RunID != runID {
			return nil
		}
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	for _, topic := range []string{ports.TopicRunEvents, ports.TopicStepEvents} {
		if err := h.eventBus.Subscribe(ctx, topic, handler); err != nil {
			logger.Error("failed to subscribe to events",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (h *Handler) close(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(writeWait))
}
