package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils"
	"github.com/fazecat/optionsmith/Internal/utils/formatting"
)

const (
	defaultTradingBase = "https://paper-api.alpaca.markets"
	defaultDataBase    = "https://data.alpaca.markets"
	snapshotBatchSize  = 100
)

// AlpacaProvider fetches option contracts from the Alpaca trading API and
// joins in quotes and greeks from the options snapshot endpoint.
type AlpacaProvider struct {
	APIKey      string
	SecretKey   string
	TradingBase string
	DataBase    string
	Client      *http.Client
	Retry       utils.RetryConfig
}

func NewAlpacaProvider() *AlpacaProvider {
	return &AlpacaProvider{
		APIKey:      os.Getenv("ALPACA_API_KEY"),
		SecretKey:   os.Getenv("ALPACA_API_SECRET"),
		TradingBase: defaultTradingBase,
		DataBase:    defaultDataBase,
		Client:      &http.Client{Timeout: 15 * time.Second},
		Retry:       utils.DefaultRetryConfig(),
	}
}

type optionContractJSON struct {
	Symbol         string `json:"symbol"`
	UnderlyingSym  string `json:"underlying_symbol"`
	Type           string `json:"type"` // "call" or "put"
	StrikePrice    string `json:"strike_price"`
	ExpirationDate string `json:"expiration_date"`
	OpenInterest   string `json:"open_interest"`
}

type contractsResponse struct {
	OptionContracts []optionContractJSON `json:"option_contracts"`
	NextPageToken   *string              `json:"next_page_token"`
}

type snapshotJSON struct {
	Greeks *struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
	} `json:"greeks"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	LatestQuote       *struct {
		Bid float64 `json:"bp"`
		Ask float64 `json:"ap"`
	} `json:"latestQuote"`
	DailyBar *struct {
		Volume int64 `json:"v"`
	} `json:"dailyBar"`
}

type snapshotsResponse struct {
	Snapshots map[string]snapshotJSON `json:"snapshots"`
}

// FetchChain lists contracts for the window, then enriches them with
// quote/greek snapshots. Transport and auth failures come back as
// *ProviderError so the caller can degrade instead of aborting.
func (p *AlpacaProvider) FetchChain(ctx context.Context, instrument string, from, to time.Time) ([]types.Contract, error) {
	raw, err := p.listContracts(ctx, instrument, from, to)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	contracts := make([]types.Contract, 0, len(raw))
	symbols := make([]string, 0, len(raw))
	for _, rc := range raw {
		strike, perr := strconv.ParseFloat(rc.StrikePrice, 64)
		if perr != nil {
			continue
		}
		exp := formatting.ParseDate(rc.ExpirationDate)
		if exp.IsZero() {
			continue
		}
		oi, _ := strconv.ParseInt(rc.OpenInterest, 10, 64)

		right := "C"
		if rc.Type == "put" {
			right = "P"
		}
		contracts = append(contracts, types.Contract{
			Symbol:       rc.Symbol,
			Underlying:   instrument,
			Right:        right,
			Strike:       strike,
			Expiration:   exp,
			OpenInterest: oi,
		})
		symbols = append(symbols, rc.Symbol)
	}

	snaps, err := p.fetchSnapshots(ctx, instrument, symbols)
	if err != nil {
		// Quotes/greeks are an enrichment; contracts without them are still
		// reported and the scorer records the gap.
		return contracts, nil
	}

	for i := range contracts {
		snap, ok := snaps[contracts[i].Symbol]
		if !ok {
			continue
		}
		if snap.LatestQuote != nil {
			contracts[i].Bid = snap.LatestQuote.Bid
			contracts[i].Ask = snap.LatestQuote.Ask
		}
		if snap.DailyBar != nil {
			contracts[i].Volume = snap.DailyBar.Volume
		}
		contracts[i].ImpliedVol = snap.ImpliedVolatility
		if snap.Greeks != nil {
			contracts[i].Delta = snap.Greeks.Delta
			contracts[i].Gamma = snap.Greeks.Gamma
			contracts[i].Theta = snap.Greeks.Theta
			contracts[i].Vega = snap.Greeks.Vega
			contracts[i].HasGreeks = true
		}
	}

	return contracts, nil
}

func (p *AlpacaProvider) listContracts(ctx context.Context, instrument string, from, to time.Time) ([]optionContractJSON, error) {
	var all []optionContractJSON
	pageToken := ""

	for {
		apiURL := fmt.Sprintf(
			"%s/v2/options/contracts?underlying_symbols=%s&expiration_date_gte=%s&expiration_date_lte=%s&limit=500",
			p.TradingBase, url.QueryEscape(instrument),
			from.Format("2006-01-02"), to.Format("2006-01-02"),
		)
		if pageToken != "" {
			apiURL += "&page_token=" + url.QueryEscape(pageToken)
		}

		var page contractsResponse
		if err := p.getJSON(ctx, instrument, apiURL, &page); err != nil {
			return nil, err
		}
		all = append(all, page.OptionContracts...)

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		pageToken = *page.NextPageToken
	}

	return all, nil
}

func (p *AlpacaProvider) fetchSnapshots(ctx context.Context, instrument string, symbols []string) (map[string]snapshotJSON, error) {
	merged := make(map[string]snapshotJSON, len(symbols))

	for start := 0; start < len(symbols); start += snapshotBatchSize {
		end := start + snapshotBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		apiURL := fmt.Sprintf("%s/v1beta1/options/snapshots?symbols=%s",
			p.DataBase, url.QueryEscape(strings.Join(symbols[start:end], ",")))

		var resp snapshotsResponse
		if err := p.getJSON(ctx, instrument, apiURL, &resp); err != nil {
			return nil, err
		}
		for sym, snap := range resp.Snapshots {
			merged[sym] = snap
		}
	}

	return merged, nil
}

func (p *AlpacaProvider) getJSON(ctx context.Context, instrument, apiURL string, out interface{}) error {
	return utils.RetryWithBackoff(func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
		if err != nil {
			return &ProviderError{Kind: ErrKindTransport, Instrument: instrument, Err: err}
		}
		req.Header.Set("APCA-API-KEY-ID", p.APIKey)
		req.Header.Set("APCA-API-SECRET-KEY", p.SecretKey)

		resp, err := p.Client.Do(req)
		if err != nil {
			return &ProviderError{Kind: ErrKindTransport, Instrument: instrument, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &ProviderError{
				Kind:       ErrKindAuth,
				Instrument: instrument,
				Err:        fmt.Errorf("API returned status %d", resp.StatusCode),
			}
		}
		if resp.StatusCode != http.StatusOK {
			return &ProviderError{
				Kind:       ErrKindTransport,
				Instrument: instrument,
				Err:        fmt.Errorf("API returned status %d", resp.StatusCode),
			}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ProviderError{Kind: ErrKindTransport, Instrument: instrument, Err: err}
		}
		return nil
	}, p.Retry)
}
