package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

const maxRequestPairs = 100

type RatesHandler struct {
	ratesService port.RatesService
}

func NewRatesHandler(ratesService port.RatesService) *RatesHandler {
	return &RatesHandler{ratesService: ratesService}
}

// atList accepts both a single bucket key and a list of keys.
type atList []string

func (a *atList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*a = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("at must be a string or an array of strings")
	}
	*a = many
	return nil
}

type ratePairRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Exchange string `json:"exchange"`
	After    string `json:"after"`
	// Deprecated alias for after, accepted on the daily granularity only.
	AfterDay string `json:"afterDay"`
	At       atList `json:"at"`
}

type ratesRequest struct {
	Pairs []ratePairRequest `json:"pairs"`
}

// GetRates handles POST /rates/{granularity}.
func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	granularity, err := domain.ParseGranularity(r.PathValue("granularity"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var request ratesRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(request.Pairs) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "pairs must not be empty")
		return
	}
	if len(request.Pairs) > maxRequestPairs {
		writeErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("too many pairs: %d (max %d)", len(request.Pairs), maxRequestPairs))
		return
	}

	pairs := make([]domain.RequestPair, 0, len(request.Pairs))
	seen := make(map[[3]string]bool, len(request.Pairs))
	for _, p := range request.Pairs {
		if p.From == "" || p.To == "" {
			writeErrorResponse(w, http.StatusBadRequest, "pairs require from and to")
			return
		}
		if !domain.IsTickerSupported(p.From) {
			writeErrorResponse(w, http.StatusBadRequest, "unsupported ticker: "+p.From)
			return
		}
		if !domain.IsTickerSupported(p.To) {
			writeErrorResponse(w, http.StatusBadRequest, "unsupported ticker: "+p.To)
			return
		}
		key := [3]string{p.From, p.To, p.Exchange}
		if seen[key] {
			writeErrorResponse(w, http.StatusBadRequest, "pairs must not contain duplicates")
			return
		}
		seen[key] = true

		after := p.After
		if p.AfterDay != "" {
			if granularity != domain.GranularityDaily {
				writeErrorResponse(w, http.StatusBadRequest, "afterDay is only accepted on the daily granularity")
				return
			}
			if after == "" {
				after = p.AfterDay
			}
		}

		pairs = append(pairs, domain.RequestPair{
			From:     p.From,
			To:       p.To,
			Exchange: p.Exchange,
			After:    after,
			At:       p.At,
		})
	}

	response, err := h.ratesService.GetHisto(r.Context(), pairs, granularity)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "failed to get rates: "+err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, response)
}
