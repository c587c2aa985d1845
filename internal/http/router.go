package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", app.Gateway)
	mux.HandleFunc("GET /categories", app.listCategoriesHandler)
	mux.HandleFunc("POST /categories", app.createCategoryHandler)
	mux.HandleFunc("DELETE /categories/{id}", app.deleteCategoryHandler)
	mux.HandleFunc("POST /categories/{id}/items", app.addItemHandler)
	mux.HandleFunc("DELETE /categories/{id}/items/{itemID}", app.removeItemHandler)
	mux.HandleFunc("PUT /categories/{id}/items/{itemID}/quantity", app.setQuantityHandler)
	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.HandleFunc("GET /debug/metrics", app.metricsHandler)
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("GET /openapi.yaml", app.openapiHandler)
	mux.HandleFunc("GET /docs", app.docsHandler)
	return WithRequestID(WithLogging(mux))
}
