package market

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// API expõe um /api/v3/simple/price compatível com a CoinGecko
type API struct {
	Market      *Market
	Log         *zap.Logger
	FailureRate float64 // fração de respostas 503 simuladas
	Requests    *prometheus.CounterVec
}

// NewRequestsCounter conta requisições por status
func NewRequestsCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_simulator_requests_total",
		Help: "Requisições ao simple/price por status",
	}, []string{"status"})
	reg.MustRegister(c)
	return c
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v3/simple/price", a.simplePrice)
	r.Get("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"gecko_says": "(V3) To the Moon!"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) simplePrice(w http.ResponseWriter, r *http.Request) {
	ids := splitList(r.URL.Query().Get("ids"))
	currencies := splitList(r.URL.Query().Get("vs_currencies"))
	if len(ids) == 0 || len(currencies) == 0 {
		a.count("400")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ids and vs_currencies are required"})
		return
	}

	if a.Market.Fail(a.FailureRate) {
		a.count("503")
		a.Log.Debug("simulated price source failure")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "simulated outage"})
		return
	}

	a.count("200")
	writeJSON(w, http.StatusOK, a.Market.Quote(ids, currencies))
}

func (a *API) count(status string) {
	if a.Requests != nil {
		a.Requests.WithLabelValues(status).Inc()
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
