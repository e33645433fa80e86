package v1

import (
	"net/http"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

type ExchangesHandler struct {
	ratesService port.RatesService
}

func NewExchangesHandler(ratesService port.RatesService) *ExchangesHandler {
	return &ExchangesHandler{ratesService: ratesService}
}

// GetExchanges handles GET /exchanges/{from}/{to}.
func (h *ExchangesHandler) GetExchanges(w http.ResponseWriter, r *http.Request) {
	from := r.PathValue("from")
	to := r.PathValue("to")

	if !domain.IsTickerSupported(from) {
		writeErrorResponse(w, http.StatusBadRequest, "unsupported ticker: "+from)
		return
	}
	if !domain.IsTickerSupported(to) {
		writeErrorResponse(w, http.StatusBadRequest, "unsupported ticker: "+to)
		return
	}

	exchanges, err := h.ratesService.GetExchanges(r.Context(), from, to)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "failed to get exchanges: "+err.Error())
		return
	}
	if exchanges == nil {
		exchanges = []domain.ExchangeInfo{}
	}
	writeJSONResponse(w, http.StatusOK, exchanges)
}

// GetTickers handles GET /tickers.
func (h *ExchangesHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.ratesService.GetTickers(r.Context()))
}
