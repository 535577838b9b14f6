package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/settings"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production.
		return true
	},
}

// wsMessage is the signaling format on the voice socket.
// Client types: "start", "stop", "clear", "settings".
// Server types: "phase", "partial", "turn", "notice", "error".
// Binary frames from the client carry PCM audio for the recognizer.
type wsMessage struct {
	Type     string             `json:"type"`
	Phase    string             `json:"phase,omitempty"`
	Text     string             `json:"text,omitempty"`
	Turn     *session.Turn      `json:"turn,omitempty"`
	Notice   *session.Notice    `json:"notice,omitempty"`
	Settings *settings.Settings `json:"settings,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// voiceSession upgrades to WebSocket and runs one session controller for the
// life of the socket.
func (h *handlers) voiceSession(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.deps.Logger.Warn("ws upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	logger := h.deps.Logger.With(zap.String("remote", conn.RemoteAddr().String()))
	var writeMu sync.Mutex
	send := func(msg wsMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("ws write failed", zap.Error(err))
		}
	}

	stored, err := h.deps.Store.Load()
	if err != nil {
		logger.Warn("loading settings for session failed", zap.Error(err))
	}

	completer := &poolCompleter{pool: h.deps.Pool, store: h.deps.Store}
	ctrl := session.New(h.deps.Recognizer, completer, h.deps.DispatchTimeout, session.Hooks{
		OnPhase:   func(p session.Phase) { send(wsMessage{Type: "phase", Phase: p.String()}) },
		OnInterim: func(text string) { send(wsMessage{Type: "partial", Text: text}) },
		OnTurn:    func(t session.Turn) { send(wsMessage{Type: "turn", Turn: &t}) },
		OnNotice:  func(n session.Notice) { send(wsMessage{Type: "notice", Notice: &n}) },
	}, logger)
	ctrl.UpdateSettings(stored)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	defer ctrl.StopCapture()

	send(wsMessage{Type: "phase", Phase: ctrl.Phase().String()})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("ws closed", zap.Error(err))
			return nil
		}
		switch mt {
		case websocket.BinaryMessage:
			if err := ctrl.SendAudio(data); err != nil {
				logger.Debug("dropping audio", zap.Error(err))
			}
		case websocket.TextMessage:
			var msg wsMessage
			if err := sonic.Unmarshal(data, &msg); err != nil {
				send(wsMessage{Type: "error", Error: "invalid message"})
				continue
			}
			h.handleControl(ctx, ctrl, msg, send, logger)
		}
	}
}

func (h *handlers) handleControl(ctx context.Context, ctrl *session.Controller, msg wsMessage, send func(wsMessage), logger *zap.Logger) {
	switch msg.Type {
	case "start":
		if _, err := ctrl.StartCapture(ctx); err != nil {
			logger.Debug("start capture refused", zap.Error(err))
		}
	case "stop":
		ctrl.StopCapture()
	case "clear":
		ctrl.Clear()
	case "settings":
		if msg.Settings == nil {
			send(wsMessage{Type: "error", Error: "settings payload missing"})
			return
		}
		ctrl.UpdateSettings(*msg.Settings)
		if err := h.deps.Store.Save(*msg.Settings); err != nil {
			logger.Error("persisting settings failed", zap.Error(err))
			send(wsMessage{Type: "error", Error: "could not persist settings"})
		}
	default:
		send(wsMessage{Type: "error", Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// poolCompleter bridges the session controller to the gateway: credentials
// come from the settings store at dispatch time and resolve to a pooled
// connection handle, so the controller itself never sees them.
type poolCompleter struct {
	pool  *gateway.Pool
	store *settings.Store
}

func (pc *poolCompleter) Complete(ctx context.Context, req session.Request) (string, error) {
	s, err := pc.store.Load()
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	client := pc.pool.Get(gateway.Credentials{Account: s.Account, User: s.User, Password: s.Password})
	return client.Complete(ctx, gateway.Request{
		Prompt:  req.Prompt,
		AgentID: req.AgentID,
		Routing: gateway.Routing{
			Warehouse: req.Routing.Warehouse,
			Database:  req.Routing.Database,
			Schema:    req.Routing.Schema,
		},
	})
}
