package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/obs"
)

// conn is one authenticated socket connection. Its subscription flag
// and pending snapshot timer are owned by the connection; room
// membership lives in the gateway maps.
type conn struct {
	id     string
	userID string
	g      *Gateway
	ws     *websocket.Conn
	send   chan model.Envelope

	mu          sync.Mutex
	subscribed  bool
	pendingSnap *time.Timer
	closed      bool
}

// enqueue offers an envelope without blocking; a full buffer drops the
// message (the next full-state resynchronizes the client).
func (c *conn) enqueue(env model.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		obs.Logger.Warn("ws_send_buffer_full", "connection_id", c.id, "event", env.Event)
	}
}

func (c *conn) readPump() {
	defer func() {
		c.g.remove(c)
		c.close()
		obs.Logger.Info("ws_disconnected", "connection_id", c.id, "user_id", c.userID)
	}()

	c.ws.SetReadDeadline(time.Now().Add(c.g.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.g.opts.PongTimeout))
		return nil
	})

	for {
		var env model.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				obs.Logger.Warn("ws_read_error", "connection_id", c.id, "error", err)
			}
			return
		}
		switch env.Event {
		case model.MsgSubscribe:
			c.subscribe()
		case model.MsgUnsubscribe:
			c.unsubscribe()
		default:
			if out, err := model.NewEnvelope("error", map[string]string{
				"message": "unknown event: " + env.Event,
			}); err == nil {
				c.enqueue(out)
			}
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.g.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.g.opts.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				obs.Logger.Warn("ws_write_error", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.g.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// subscribe joins the stock-updates group and schedules a debounced
// full-state send. Duplicate subscribes are a no-op on membership but
// still reset the single debounce timer, so repeated requests within
// the window collapse into one emission.
func (c *conn) subscribe() {
	c.mu.Lock()
	already := c.subscribed
	c.subscribed = true
	c.mu.Unlock()
	if already {
		obs.Logger.Info("ws_subscribe_duplicate", "connection_id", c.id)
	} else {
		c.g.joinStock(c)
		obs.Logger.Info("ws_subscribed", "connection_id", c.id, "user_id", c.userID)
	}
	c.scheduleSnapshot()
}

// unsubscribe leaves the stock-updates group; idempotent.
func (c *conn) unsubscribe() {
	c.mu.Lock()
	already := c.subscribed
	c.subscribed = false
	if c.pendingSnap != nil {
		c.pendingSnap.Stop()
		c.pendingSnap = nil
	}
	c.mu.Unlock()
	if !already {
		obs.Logger.Info("ws_unsubscribe_duplicate", "connection_id", c.id)
		return
	}
	c.g.leaveStock(c)
	obs.Logger.Info("ws_unsubscribed", "connection_id", c.id)
}

func (c *conn) scheduleSnapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.pendingSnap != nil {
		c.pendingSnap.Stop()
	}
	c.pendingSnap = time.AfterFunc(c.g.opts.SubscribeDebounce, c.emitSnapshot)
}

// emitSnapshot sends this connection its own full-state view, gated by
// the per-connection limiter. Snapshot failures are logged and never
// close the connection.
func (c *conn) emitSnapshot() {
	c.mu.Lock()
	c.pendingSnap = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if !c.g.opts.Limiter.Allow(c.id) {
		obs.Logger.Info("ws_snapshot_rate_limited", "connection_id", c.id)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cats, err := c.g.opts.Snapshots.ListCategories(ctx)
	if err != nil {
		obs.Logger.Error("ws_snapshot_error", "connection_id", c.id, "error", err)
		return
	}
	fs := model.NewFullState(cats, time.Now().UTC())
	env, err := model.NewEnvelope(model.EventFullState, fs)
	if err != nil {
		obs.Logger.Error("ws_encode_error", "event", model.EventFullState, "error", err)
		return
	}
	c.enqueue(env)
}

// close cancels pending timers and tears the connection down; safe to
// call more than once.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.pendingSnap != nil {
		c.pendingSnap.Stop()
		c.pendingSnap = nil
	}
	c.mu.Unlock()
	close(c.send)
	c.ws.Close()
}
