package tui

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-panels/protocol"
)

var ErrClosed = errors.New("connection closed")

// WSClient manages the /view/ws connection.
type WSClient struct {
	conn    *websocket.Conn
	send    chan []byte
	receive chan *protocol.Message
	done    chan struct{}
	once    sync.Once
}

// Dial connects to serverURL (ws:// or wss://).
func Dial(ctx context.Context, serverURL string) (*WSClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, err
	}
	c := &WSClient{
		conn:    conn,
		send:    make(chan []byte, 16),
		receive: make(chan *protocol.Message, 16),
		done:    make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// readPump decodes frames until the connection fails; it closes receive.
func (c *WSClient) readPump() {
	defer func() {
		close(c.receive)
		_ = c.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", slog.Any("err", err), slog.String("component", "tui"))
			}
			return
		}
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			slog.Debug("undecodable frame", slog.Any("err", err), slog.String("component", "tui"))
			continue
		}
		select {
		case c.receive <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// Send queues a command for the server.
func (c *WSClient) Send(msgType protocol.MessageType, payload any) error {
	msg, err := protocol.EncodeMessage(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Receive returns the channel of server frames; it is closed on disconnect.
func (c *WSClient) Receive() <-chan *protocol.Message { return c.receive }

// Close shuts the connection down. It is safe to call more than once.
func (c *WSClient) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
