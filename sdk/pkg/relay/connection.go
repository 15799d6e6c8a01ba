package relay

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/session"
)

// connection 一个 websocket 连接，读循环按接收顺序依次处理事件
type connection struct {
	server  *Server
	ws      *websocket.Conn
	session *session.Session
	log     *zap.Logger

	writeMu sync.Mutex
	done    chan struct{}
}

func newConnection(s *Server, ws *websocket.Conn, remote string) *connection {
	sess := s.registry.Open()
	return &connection{
		server:  s,
		ws:      ws,
		session: sess,
		log:     s.log.With(zap.String("session", sess.ID()), zap.String("remote", remote)),
		done:    make(chan struct{}),
	}
}

func (c *connection) serve() {
	c.log.Info("client connected")
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in connection",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		close(c.done)
		c.session.Close()
		_ = c.ws.Close()
		c.log.Info("client disconnected")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.keepalive()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := decodeFrame(message)
		if err != nil {
			c.log.Debug("malformed frame ignored", zap.Error(err))
			continue
		}
		c.handle(frame)
	}
}

func (c *connection) handle(f Frame) {
	ctx, cancel := c.eventContext()
	defer cancel()

	switch f.Event {
	case EventCreateConnection:
		c.bind(ctx, f.Data)
	case EventUpdateTracking:
		c.update(ctx, f.Data)
	default:
		c.log.Debug("unknown event ignored", zap.String("event", f.Event))
	}
}

func (c *connection) eventContext() (context.Context, context.CancelFunc) {
	if timeout := c.server.tracking.EventTimeout; timeout > 0 {
		return context.WithTimeout(c.server.baseCtx, timeout)
	}
	return context.WithCancel(c.server.baseCtx)
}

func (c *connection) bind(ctx context.Context, data []byte) {
	domain, user, err := ParseBind(data)
	if err == nil {
		err = c.session.Bind(ctx, domain, user)
	}
	if err != nil {
		c.ack(EventBindFailed, BindFailed{Reason: session.Reason(err), Message: err.Error()})
	}
}

func (c *connection) update(ctx context.Context, data []byte) {
	ev, err := progress.ParseEvent(data)
	if err != nil {
		c.ack(EventUpdateFailed, UpdateFailed{
			Reason:   session.ReasonInvalidPayload,
			ModuleID: moduleIDOf(data),
			Message:  err.Error(),
		})
		return
	}

	if _, err := c.session.Update(ctx, ev); err != nil {
		if errors.Is(err, session.ErrNotBound) {
			c.log.Debug("update before bind ignored", zap.String("module_id", ev.ModuleID))
		}
		c.ack(EventUpdateFailed, UpdateFailed{
			Reason:   session.Reason(err),
			ModuleID: ev.ModuleID,
			Message:  err.Error(),
		})
	}
}

func (c *connection) ack(event string, data interface{}) {
	if !c.server.tracking.AckFailures {
		return
	}
	msg, err := encodeFrame(event, data)
	if err != nil {
		c.log.Error("encode ack", zap.String("event", event), zap.Error(err))
		return
	}
	if err := c.write(websocket.TextMessage, msg); err != nil {
		c.log.Debug("write ack", zap.String("event", event), zap.Error(err))
	}
}

func (c *connection) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *connection) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
