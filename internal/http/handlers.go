package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/recyclemart/stocksync/internal/config"
	"github.com/recyclemart/stocksync/internal/gateway"
	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/obs"
	"github.com/recyclemart/stocksync/internal/store"
	"github.com/recyclemart/stocksync/internal/throttle"

	httpopenapi "github.com/recyclemart/stocksync/internal/http/openapi"
)

// App wires the HTTP surface to the pipeline. Store is nil when the
// authoritative store is external (MongoDB mode); the mutation
// endpoints then refuse, since this pipeline never writes to the store.
type App struct {
	Cfg       config.Config
	Store     *store.Store
	Snapshots gateway.SnapshotProvider
	Gateway   *gateway.Gateway
	Throttler *throttle.Throttler
	closing   atomic.Bool
	started   time.Time
}

// NewApp constructs the HTTP application.
func NewApp(cfg config.Config, st *store.Store, snaps gateway.SnapshotProvider, gw *gateway.Gateway, th *throttle.Throttler) *App {
	return &App{Cfg: cfg, Store: st, Snapshots: snaps, Gateway: gw, Throttler: th, started: time.Now()}
}

// StartShutdown flips the app into drain mode: mutating endpoints
// refuse while in-flight work finishes. Safe to call while requests
// are in flight.
func (a *App) StartShutdown() {
	a.closing.Store(true)
}

func (a *App) writable(w http.ResponseWriter) bool {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return false
	}
	if a.Store == nil {
		WriteJSONError(w, http.StatusMethodNotAllowed, "store_readonly", "authoritative store is external; mutate it directly")
		return false
	}
	return true
}

func (a *App) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	cats, err := a.Snapshots.ListCategories(r.Context())
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "snapshot_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(model.NewFullState(cats, time.Now().UTC()))
}

func (a *App) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	if !a.writable(w) {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	var cat model.Category
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&cat); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if cat.ID == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "category_id is required")
		return
	}
	for _, item := range cat.Items {
		if item.ItemID == "" {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "item_id is required")
			return
		}
		if item.Quantity < 0 {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "quantity must be >= 0")
			return
		}
	}
	if err := a.Store.CreateCategory(cat); err != nil {
		writeStoreError(w, err)
		return
	}
	obs.Logger.Info("category_created",
		"request_id", RequestIDFromContext(r.Context()),
		"category_id", cat.ID,
		"items", len(cat.Items),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(cat)
}

type quantityUpdate struct {
	Quantity *float64 `json:"quantity"`
}

func (a *App) setQuantityHandler(w http.ResponseWriter, r *http.Request) {
	if !a.writable(w) {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	catID := r.PathValue("id")
	itemID := r.PathValue("itemID")
	var body quantityUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if body.Quantity == nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "quantity is required")
		return
	}
	if err := a.Store.SetQuantity(catID, itemID, *body.Quantity); err != nil {
		writeStoreError(w, err)
		return
	}
	obs.Logger.Info("quantity_set",
		"request_id", RequestIDFromContext(r.Context()),
		"category_id", catID,
		"item_id", itemID,
		"quantity", *body.Quantity,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "accepted",
		"category_id": catID,
		"item_id":     itemID,
		"quantity":    *body.Quantity,
	})
}

func (a *App) addItemHandler(w http.ResponseWriter, r *http.Request) {
	if !a.writable(w) {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	catID := r.PathValue("id")
	var item model.StockRecord
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if item.ItemID == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "item_id is required")
		return
	}
	if err := a.Store.AddItem(catID, item); err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(item)
}

func (a *App) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	if !a.writable(w) {
		return
	}
	if err := a.Store.RemoveItem(r.PathValue("id"), r.PathValue("itemID")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	if !a.writable(w) {
		return
	}
	if err := a.Store.DeleteCategory(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	emitted, coalesced, pending := a.Throttler.Metrics()
	conns, subscribed := a.Gateway.Counts()
	m := map[string]any{
		"events_emitted":   emitted,
		"events_coalesced": coalesced,
		"pending_channels": pending,
		"connections":      conns,
		"subscribed":       subscribed,
		"uptime_sec":       time.Since(a.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	case errors.Is(err, store.ErrExists):
		WriteJSONError(w, http.StatusConflict, "already_exists", "")
	case errors.Is(err, store.ErrNegative):
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "quantity must be >= 0")
	case errors.Is(err, store.ErrClosed):
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
	default:
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	}
}
