package v1

import "net/http"

// SetRoutes registers all API routes.
func SetRoutes(router *http.ServeMux, ratesHandler *RatesHandler, exchangesHandler *ExchangesHandler, healthHandler *HealthHandler) {
	router.HandleFunc("POST /rates/{granularity}", ratesHandler.GetRates)

	router.HandleFunc("GET /exchanges/{from}/{to}", exchangesHandler.GetExchanges)
	router.HandleFunc("GET /tickers", exchangesHandler.GetTickers)

	router.HandleFunc("GET /_health", healthHandler.GetHealth)
	router.HandleFunc("GET /_health/noop", healthHandler.GetHealthNoop)
	router.HandleFunc("GET /_health/detail", healthHandler.GetHealthDetail)
}

// CORS wraps the router with a permissive cross-origin policy.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
