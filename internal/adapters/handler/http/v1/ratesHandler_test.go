package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

type fakeRatesService struct {
	lastPairs       []domain.RequestPair
	lastGranularity domain.Granularity
	response        domain.HistoResponse
	exchanges       []domain.ExchangeInfo
	tickers         []string
}

func (f *fakeRatesService) GetHisto(ctx context.Context, pairs []domain.RequestPair, g domain.Granularity) (domain.HistoResponse, error) {
	f.lastPairs = pairs
	f.lastGranularity = g
	return f.response, nil
}

func (f *fakeRatesService) GetExchanges(ctx context.Context, from, to string) ([]domain.ExchangeInfo, error) {
	return f.exchanges, nil
}

func (f *fakeRatesService) GetTickers(ctx context.Context) []string {
	return f.tickers
}

func newTestMux(rates *fakeRatesService) *http.ServeMux {
	mux := http.NewServeMux()
	SetRoutes(mux, NewRatesHandler(rates), NewExchangesHandler(rates), NewHealthHandler(&fakeHealthService{}, "test"))
	return mux
}

func postRates(t *testing.T, mux *http.ServeMux, granularity, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rates/"+granularity, strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestGetRates_OK(t *testing.T) {
	rates := &fakeRatesService{response: domain.HistoResponse{
		"USD": {"BTC": {"Kraken": domain.Histo{"2026-03-09": 0.5, "latest": 0.6}}},
	}}
	mux := newTestMux(rates)

	rr := postRates(t, mux, "daily", `{"pairs":[{"from":"BTC","to":"USD"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rates.lastGranularity != domain.GranularityDaily {
		t.Fatalf("granularity: %s", rates.lastGranularity)
	}
	var decoded domain.HistoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["USD"]["BTC"]["Kraken"]["latest"] != 0.6 {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestGetRates_RejectsDuplicates(t *testing.T) {
	mux := newTestMux(&fakeRatesService{})
	rr := postRates(t, mux, "daily",
		`{"pairs":[{"from":"BTC","to":"USD"},{"from":"BTC","to":"USD"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "duplicates") {
		t.Fatalf("unexpected message: %s", rr.Body.String())
	}
}

func TestGetRates_SamePairDifferentExchangeIsNotDuplicate(t *testing.T) {
	mux := newTestMux(&fakeRatesService{})
	rr := postRates(t, mux, "daily",
		`{"pairs":[{"from":"BTC","to":"USD","exchange":"A"},{"from":"BTC","to":"USD","exchange":"B"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetRates_RejectsUnknownGranularity(t *testing.T) {
	mux := newTestMux(&fakeRatesService{})
	rr := postRates(t, mux, "weekly", `{"pairs":[{"from":"BTC","to":"USD"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetRates_RejectsTooManyPairs(t *testing.T) {
	// The size check runs before any per-pair validation.
	var pairs []string
	for i := 0; i < 101; i++ {
		pairs = append(pairs, `{"from":"BTC","to":"USD"}`)
	}
	mux := newTestMux(&fakeRatesService{})
	rr := postRates(t, mux, "daily", `{"pairs":[`+strings.Join(pairs, ",")+`]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "too many pairs") {
		t.Fatalf("unexpected message: %s", rr.Body.String())
	}
}

func TestGetRates_RejectsUnsupportedTicker(t *testing.T) {
	mux := newTestMux(&fakeRatesService{})
	rr := postRates(t, mux, "daily", `{"pairs":[{"from":"XYZABC","to":"USD"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetRates_AfterDayIsDailyOnly(t *testing.T) {
	rates := &fakeRatesService{}
	mux := newTestMux(rates)

	rr := postRates(t, mux, "hourly",
		`{"pairs":[{"from":"BTC","to":"USD","afterDay":"2026-03-01"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("hourly afterDay: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = postRates(t, mux, "daily",
		`{"pairs":[{"from":"BTC","to":"USD","afterDay":"2026-03-01"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("daily afterDay: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rates.lastPairs[0].After != "2026-03-01" {
		t.Fatalf("afterDay must alias after, got %q", rates.lastPairs[0].After)
	}
}

func TestGetRates_AtAcceptsStringAndArray(t *testing.T) {
	rates := &fakeRatesService{}
	mux := newTestMux(rates)

	rr := postRates(t, mux, "daily",
		`{"pairs":[{"from":"BTC","to":"USD","at":"2026-03-01"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("string at: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(rates.lastPairs[0].At) != 1 || rates.lastPairs[0].At[0] != "2026-03-01" {
		t.Fatalf("string at: %v", rates.lastPairs[0].At)
	}

	rr = postRates(t, mux, "daily",
		`{"pairs":[{"from":"BTC","to":"USD","at":["2026-03-01","2026-03-02"]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("array at: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(rates.lastPairs[0].At) != 2 {
		t.Fatalf("array at: %v", rates.lastPairs[0].At)
	}
}

func TestGetExchanges_RejectsUnsupportedTicker(t *testing.T) {
	mux := newTestMux(&fakeRatesService{})
	req := httptest.NewRequest(http.MethodGet, "/exchanges/XYZABC/USD", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetTickers(t *testing.T) {
	mux := newTestMux(&fakeRatesService{tickers: []string{"BTC", "ETH"}})
	req := httptest.NewRequest(http.MethodGet, "/tickers", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var tickers []string
	if err := json.Unmarshal(rr.Body.Bytes(), &tickers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "BTC" {
		t.Fatalf("tickers: %v", tickers)
	}
}

func TestCORS_PermissiveHeadersAndPreflight(t *testing.T) {
	mux := newTestMux(&fakeRatesService{})
	handler := CORS(mux)

	req := httptest.NewRequest(http.MethodOptions, "/rates/daily", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}
