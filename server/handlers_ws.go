package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-panels/protocol"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/telemetry"
	"github.com/onnwee/chat-panels/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second    // time allowed to read the next pong message from client
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	// Bursts of chat collapse into one snapshot per interval.
	viewFlushInterval = 250 * time.Millisecond
)

// viewClient is one /view/ws connection. Only writePump writes to conn.
type viewClient struct {
	h      *Handlers
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.cors.permissive || isOriginAllowed(origin, h.cors.allowedOrigins)
		},
	}
}

// HandleViewWS streams render model snapshots and accepts setting commands.
func (h *Handlers) HandleViewWS(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "ws"))
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	c := &viewClient{h: h, conn: conn, send: make(chan []byte, 16), logger: logger}
	updates, unsubscribe := h.sessions.Subscribe(sseBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(ctx, updates)
	}()
	c.readPump(ctx)
	cancel()
	<-done
	logger.Debug("websocket closed")
}

// readPump applies commands until the connection fails or ctx ends.
func (c *viewClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", slog.Any("err", err))
			}
			return
		}
		if err := c.handleCommand(ctx, data); err != nil {
			c.sendError(err)
		}
	}
}

func (c *viewClient) handleCommand(ctx context.Context, data []byte) error {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	sessions := c.h.sessions
	switch msg.Type {
	case protocol.MsgLayout:
		var p protocol.LayoutPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if p.Mode == "" {
			_, err = sessions.ToggleLayout(ctx)
			return err
		}
		mode, err := view.ParseMode(p.Mode)
		if err != nil {
			return err
		}
		_, err = sessions.SetLayout(ctx, mode)
		return err
	case protocol.MsgFontSize, protocol.MsgBoxSize:
		var p protocol.StepPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if p.Delta == 0 {
			return fmt.Errorf("%s: delta must be non-zero", msg.Type)
		}
		_, err = sessions.Step(ctx, view.Setting(msg.Type), p.Delta)
		return err
	case protocol.MsgTimestamps:
		_, err = sessions.ToggleTimestamps(ctx)
		return err
	default:
		return fmt.Errorf("unknown command %q", msg.Type)
	}
}

func (c *viewClient) sendError(err error) {
	b, encErr := protocol.EncodeMessage(protocol.MsgError, protocol.ErrorPayload{Message: err.Error()})
	if encErr != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// writePump sends a snapshot on connect and after every change, at most once per flush interval.
func (c *viewClient) writePump(ctx context.Context, updates <-chan session.Update) {
	ping := time.NewTicker(pingPeriod)
	flush := time.NewTicker(viewFlushInterval)
	defer func() {
		ping.Stop()
		flush.Stop()
		_ = c.conn.Close()
	}()

	if err := c.writeView(ctx); err != nil {
		return
	}
	dirty := false
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			dirty = true
		case <-flush.C:
			if !dirty {
				continue
			}
			dirty = false
			if err := c.writeView(ctx); err != nil {
				return
			}
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *viewClient) writeView(ctx context.Context) error {
	b, err := protocol.EncodeMessage(protocol.MsgView, protocol.ViewPayload{View: c.h.sessions.View(ctx)})
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}
