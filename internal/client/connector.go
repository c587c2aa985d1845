package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/obs"
)

// Connector keeps a Cache synchronized with the gateway. It dials with
// the credential in the auth query parameter, subscribes, and feeds
// every received envelope into the cache. A dropped connection is
// redialed after a fixed backoff; the re-subscribe on reconnect pulls a
// fresh full-state snapshot, which overrides whatever the cache held.
type Connector struct {
	url     string
	token   string
	cache   *Cache
	backoff time.Duration
	dialer  *websocket.Dialer
}

// NewConnector builds a connector for a ws:// gateway URL. A
// non-positive backoff defaults to 3s.
func NewConnector(rawURL, token string, cache *Cache, backoff time.Duration) *Connector {
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	return &Connector{
		url:     rawURL,
		token:   token,
		cache:   cache,
		backoff: backoff,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run dials and consumes until the context is canceled.
func (c *Connector) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			obs.Logger.Warn("client_session_error", "error", err, "backoff", c.backoff.String())
		}
		t := time.NewTimer(c.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Connector) session(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	obs.Logger.Info("client_connected", "url", c.url)

	if err := ws.WriteJSON(model.Envelope{Event: model.MsgSubscribe}); err != nil {
		return err
	}

	// Unblock reads when the context is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		var env model.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return err
		}
		c.handle(env)
	}
}

func (c *Connector) dialURL() string {
	if c.token == "" {
		return c.url
	}
	sep := "?"
	for _, r := range c.url {
		if r == '?' {
			sep = "&"
			break
		}
	}
	return c.url + sep + "auth=" + c.token
}

func (c *Connector) handle(env model.Envelope) {
	switch env.Event {
	case model.EventFullState:
		var fs model.FullState
		if err := json.Unmarshal(env.Data, &fs); err != nil {
			obs.Logger.Warn("client_decode_error", "event", env.Event, "error", err)
			return
		}
		c.cache.ApplyFullState(fs)
	case model.EventStockUpdated, model.EventCategoryUpdated, model.EventCategoryAdded:
		var ev model.StockChangeEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			obs.Logger.Warn("client_decode_error", "event", env.Event, "error", err)
			return
		}
		c.cache.ApplyEvent(ev)
	case model.EventCategoryDeleted:
		var del model.CategoryDeleted
		if err := json.Unmarshal(env.Data, &del); err != nil {
			obs.Logger.Warn("client_decode_error", "event", env.Event, "error", err)
			return
		}
		c.cache.ApplyEvent(model.StockChangeEvent{
			Kind:       model.KindCategoryDeleted,
			CategoryID: del.CategoryID,
			Timestamp:  del.Timestamp,
		})
	case model.EventItem, "connected":
		// The flat legacy message duplicates stock:updated and the
		// welcome frame carries no stock data.
	default:
		obs.Logger.Info("client_event_ignored", "event", env.Event)
	}
}
