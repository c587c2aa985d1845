// Package gateway authenticates socket connections, tracks their
// subscription state, and fans stock events out to them.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/obs"
	"github.com/recyclemart/stocksync/internal/throttle"
)

// SnapshotProvider is the store read used to build full-state payloads.
type SnapshotProvider interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// Options configure a Gateway.
type Options struct {
	Auth      AuthFunc
	Snapshots SnapshotProvider
	Limiter   *throttle.SnapshotLimiter

	SubscribeDebounce time.Duration
	SendBuffer        int
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	PingInterval      time.Duration
}

func (o *Options) fill() {
	if o.SubscribeDebounce <= 0 {
		o.SubscribeDebounce = 100 * time.Millisecond
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 54 * time.Second
	}
	if o.Limiter == nil {
		o.Limiter = throttle.NewSnapshotLimiter(time.Second)
	}
}

// Gateway owns all connection state: the connection registry, the
// stock-updates broadcast group, and the per-user rooms. Membership is
// mutated only by a connection's own subscribe/unsubscribe/disconnect.
type Gateway struct {
	opts     Options
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	conns      map[string]*conn
	subscribed map[string]*conn
	users      map[string]map[string]*conn
	closed     bool
}

// New constructs a Gateway. Auth must be set.
func New(opts Options) *Gateway {
	opts.fill()
	return &Gateway{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:      make(map[string]*conn),
		subscribed: make(map[string]*conn),
		users:      make(map[string]map[string]*conn),
	}
}

// ServeHTTP upgrades an authenticated handshake into a managed socket
// connection. Invalid or missing credentials refuse the connection with
// a structured error before any state is created.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := g.opts.Auth(r)
	if err != nil {
		obs.Logger.Info("ws_auth_refused", "error", err, "remote", r.RemoteAddr)
		writeAuthError(w, err)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Logger.Warn("ws_upgrade_error", "error", err)
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		userID: userID,
		g:      g,
		ws:     ws,
		send:   make(chan model.Envelope, g.opts.SendBuffer),
	}
	if !g.register(c) {
		ws.Close()
		return
	}
	obs.Logger.Info("ws_connected", "connection_id", c.id, "user_id", userID)

	if env, err := model.NewEnvelope("connected", map[string]any{
		"connection_id": c.id,
		"user_id":       userID,
		"timestamp":     time.Now().UTC(),
	}); err == nil {
		c.enqueue(env)
	}

	go c.writePump()
	c.readPump()
}

func (g *Gateway) register(c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conns[c.id] = c
	room := g.users[c.userID]
	if room == nil {
		room = make(map[string]*conn)
		g.users[c.userID] = room
	}
	room[c.id] = c
	return true
}

func (g *Gateway) remove(c *conn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	delete(g.subscribed, c.id)
	if room, ok := g.users[c.userID]; ok {
		delete(room, c.id)
		if len(room) == 0 {
			delete(g.users, c.userID)
		}
	}
	g.mu.Unlock()
	g.opts.Limiter.Forget(c.id)
}

func (g *Gateway) joinStock(c *conn) {
	g.mu.Lock()
	g.subscribed[c.id] = c
	g.mu.Unlock()
}

func (g *Gateway) leaveStock(c *conn) {
	g.mu.Lock()
	delete(g.subscribed, c.id)
	g.mu.Unlock()
}

// Emit routes a throttled stock event to its audience. Incremental
// updates go to the stock-updates group; category add/update/delete
// events go to every connected client so unsubscribed carts still learn
// about catalog changes.
func (g *Gateway) Emit(channel string, ev model.StockChangeEvent) {
	switch ev.Kind {
	case model.KindUpdate:
		g.broadcast(g.subscribers(), model.EventStockUpdated, ev)
		// Legacy consumers get one flat message per item.
		for _, item := range ev.Items {
			g.broadcast(g.subscribers(), model.EventItem, model.ItemEvent{
				ItemID:     item.ItemID,
				CategoryID: ev.CategoryID,
				Quantity:   item.Quantity,
			})
		}
	case model.KindCategoryDeleted:
		g.broadcast(g.allConns(), model.EventCategoryDeleted, model.CategoryDeleted{
			CategoryID: ev.CategoryID,
			Timestamp:  ev.Timestamp,
		})
	case model.KindCategoryAdded, model.KindCategoryUpdated:
		g.broadcast(g.allConns(), ev.Kind.WireEvent(), ev)
	default:
		obs.Logger.Warn("ws_emit_unknown_kind", "kind", string(ev.Kind), "channel", channel)
	}
}

// BroadcastFullState pushes a fresh snapshot to the stock-updates group.
// The watcher calls this after re-establishing a dropped stream.
func (g *Gateway) BroadcastFullState(ctx context.Context) {
	cats, err := g.opts.Snapshots.ListCategories(ctx)
	if err != nil {
		obs.Logger.Error("ws_full_state_error", "error", err)
		return
	}
	fs := model.NewFullState(cats, time.Now().UTC())
	g.broadcast(g.subscribers(), model.EventFullState, fs)
	obs.Logger.Info("ws_full_state_broadcast",
		"total_categories", fs.TotalCategories, "total_items", fs.TotalItems)
}

// SendToUser delivers an event to every connection in a user's private
// room.
func (g *Gateway) SendToUser(userID, event string, data any) {
	g.mu.RLock()
	room := g.users[userID]
	targets := make([]*conn, 0, len(room))
	for _, c := range room {
		targets = append(targets, c)
	}
	g.mu.RUnlock()
	g.broadcast(targets, event, data)
}

func (g *Gateway) subscribers() []*conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*conn, 0, len(g.subscribed))
	for _, c := range g.subscribed {
		out = append(out, c)
	}
	return out
}

func (g *Gateway) allConns() []*conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

func (g *Gateway) broadcast(targets []*conn, event string, data any) {
	env, err := model.NewEnvelope(event, data)
	if err != nil {
		obs.Logger.Error("ws_encode_error", "event", event, "error", err)
		return
	}
	for _, c := range targets {
		c.enqueue(env)
	}
}

// Counts reports connection totals for the debug metrics endpoint.
func (g *Gateway) Counts() (conns, subscribed int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns), len(g.subscribed)
}

// Close disconnects every client and refuses new registrations.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	conns := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"details": err.Error(),
	})
}
