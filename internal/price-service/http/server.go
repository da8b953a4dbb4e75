package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radieske/crypto-price-stream/internal/price-service/store"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// API expõe o stream WebSocket e a consulta REST do snapshot atual
type API struct {
	Store   store.Reader
	Symbols []string
	WS      http.Handler     // handler de upgrade WebSocket
	Now     func() time.Time // nil usa time.Now
}

// Router retorna o roteador HTTP público
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", a.WS.ServeHTTP)   // compatível com clientes que conectam na raiz
	r.Get("/ws", a.WS.ServeHTTP) // WebSocket de preços
	r.Get("/v1/prices", a.getPrices)
	r.Get("/v1/assets", a.listAssets)
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// getPrices retorna o snapshot no mesmo formato da mensagem price_update
func (a *API) getPrices(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	writeJSON(w, http.StatusOK, events.NewPriceUpdate(a.Store.Snapshot(), now().UTC()))
}

// listAssets retorna os símbolos rastreados
func (a *API) listAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"assets": a.Symbols})
}
