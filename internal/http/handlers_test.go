package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recyclemart/stocksync/internal/config"
	"github.com/recyclemart/stocksync/internal/gateway"
	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/store"
	"github.com/recyclemart/stocksync/internal/throttle"
)

func newTestApp(t *testing.T) (*App, http.Handler, *store.Store) {
	t.Helper()
	st := store.New()
	gw := gateway.New(gateway.Options{
		Auth:      gateway.InsecureAuth(),
		Snapshots: st,
	})
	th := throttle.New(50*time.Millisecond, gw.Emit)
	t.Cleanup(func() {
		th.Stop()
		gw.Close()
		st.Close()
	})
	app := NewApp(config.Config{}, st, st, gw, th)
	return app, NewRouter(app), st
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedCategory(t *testing.T, h http.Handler) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/categories", `{
		"category_id": "plastics",
		"category_name": {"en": "Plastics", "ar": "بلاستيك"},
		"items": [
			{"item_id": "pet", "quantity": 10, "measurement_unit": "byWeight", "name": "PET"}
		]
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d %s", rec.Code, rec.Body)
	}
}

func TestCreateAndListCategories(t *testing.T) {
	_, h, _ := newTestApp(t)
	seedCategory(t, h)

	rec := doJSON(t, h, http.MethodGet, "/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	var fs model.FullState
	if err := json.Unmarshal(rec.Body.Bytes(), &fs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fs.TotalCategories != 1 || fs.TotalItems != 1 {
		t.Fatalf("totals: %+v", fs)
	}
	if got := fs.Categories[0].Name.Display(); got != "Plastics" {
		t.Fatalf("name: %q", got)
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	_, h, _ := newTestApp(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing id", `{"items": []}`, http.StatusBadRequest},
		{"missing item id", `{"category_id": "c1", "items": [{"quantity": 1}]}`, http.StatusBadRequest},
		{"negative quantity", `{"category_id": "c1", "items": [{"item_id": "i1", "quantity": -1}]}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/categories", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("got %d, want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestCreateCategoryConflict(t *testing.T) {
	_, h, _ := newTestApp(t)
	seedCategory(t, h)
	rec := doJSON(t, h, http.MethodPost, "/categories", `{"category_id": "plastics", "items": []}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestSetQuantity(t *testing.T) {
	_, h, st := newTestApp(t)
	seedCategory(t, h)

	rec := doJSON(t, h, http.MethodPut, "/categories/plastics/items/pet/quantity", `{"quantity": 7}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
	cat, ok := st.Get("plastics")
	if !ok || cat.Items[0].Quantity != 7 {
		t.Fatalf("store not updated: %+v", cat)
	}

	rec = doJSON(t, h, http.MethodPut, "/categories/plastics/items/pet/quantity", `{"quantity": -3}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative quantity: %d %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, h, http.MethodPut, "/categories/plastics/items/pet/quantity", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing quantity: %d %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, h, http.MethodPut, "/categories/plastics/items/nope/quantity", `{"quantity": 1}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown item: %d %s", rec.Code, rec.Body)
	}
}

func TestAddAndRemoveItem(t *testing.T) {
	_, h, st := newTestApp(t)
	seedCategory(t, h)

	rec := doJSON(t, h, http.MethodPost, "/categories/plastics/items",
		`{"item_id": "hdpe", "quantity": 4, "measurement_unit": "byWeight", "name": "HDPE"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body)
	}
	if cat, _ := st.Get("plastics"); len(cat.Items) != 2 {
		t.Fatalf("items: %+v", cat.Items)
	}

	rec = doJSON(t, h, http.MethodDelete, "/categories/plastics/items/hdpe", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove: %d %s", rec.Code, rec.Body)
	}
	if cat, _ := st.Get("plastics"); len(cat.Items) != 1 {
		t.Fatalf("items after remove: %+v", cat.Items)
	}
}

func TestDeleteCategory(t *testing.T) {
	_, h, st := newTestApp(t)
	seedCategory(t, h)

	rec := doJSON(t, h, http.MethodDelete, "/categories/plastics", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body)
	}
	if _, ok := st.Get("plastics"); ok {
		t.Fatalf("category still present")
	}
	rec = doJSON(t, h, http.MethodDelete, "/categories/plastics", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d %s", rec.Code, rec.Body)
	}
}

func TestMutationsRequireJSONContentType(t *testing.T) {
	_, h, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"category_id": "c1"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestReadonlyModeRefusesMutations(t *testing.T) {
	st := store.New()
	gw := gateway.New(gateway.Options{Auth: gateway.InsecureAuth(), Snapshots: st})
	th := throttle.New(time.Millisecond, gw.Emit)
	t.Cleanup(func() {
		th.Stop()
		gw.Close()
		st.Close()
	})
	// Nil store models MongoDB mode: reads come from the external
	// snapshot provider, writes go straight to the database.
	app := NewApp(config.Config{}, nil, st, gw, th)
	h := NewRouter(app)

	rec := doJSON(t, h, http.MethodPost, "/categories", `{"category_id": "c1"}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil || e.Error != "store_readonly" {
		t.Fatalf("error body: %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reads must still work: %d", rec.Code)
	}
}

func TestShutdownDrainRefusesMutations(t *testing.T) {
	app, h, _ := newTestApp(t)
	app.StartShutdown()

	rec := doJSON(t, h, http.MethodPost, "/categories", `{"category_id": "c1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health during drain: %d", rec.Code)
	}
}

func TestStartShutdownDuringTraffic(t *testing.T) {
	app, h, _ := newTestApp(t)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				body := fmt.Sprintf(`{"category_id": "c-%d-%d"}`, n, j)
				rec := doJSON(t, h, http.MethodPost, "/categories", body)
				if rec.Code != http.StatusCreated && rec.Code != http.StatusServiceUnavailable {
					t.Errorf("unexpected status %d during drain", rec.Code)
					return
				}
			}
		}(i)
	}
	close(start)
	app.StartShutdown()
	wg.Wait()

	rec := doJSON(t, h, http.MethodPost, "/categories", `{"category_id": "late"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("after drain: %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, h, _ := newTestApp(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/debug/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"events_emitted", "events_coalesced", "connections", "subscribed"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("metrics missing %q: %v", key, m)
		}
	}
}

func TestRequestIDPropagates(t *testing.T) {
	_, h, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("request id: %q", got)
	}

	rec = doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("generated request id missing")
	}
}

func TestOpenAPIServed(t *testing.T) {
	_, h, _ := newTestApp(t)
	rec := doJSON(t, h, http.MethodGet, "/openapi.yaml", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("openapi: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "openapi:") {
		t.Fatalf("unexpected openapi body")
	}
}
