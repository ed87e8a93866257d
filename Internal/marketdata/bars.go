package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/fazecat/optionsmith/Internal/utils"
)

type Bar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

// BarClient fetches daily bars from the Alpaca data API.
type BarClient struct {
	APIKey    string
	SecretKey string
	DataBase  string
	Client    *http.Client
	Retry     utils.RetryConfig
}

func NewBarClient() *BarClient {
	return &BarClient{
		APIKey:    os.Getenv("ALPACA_API_KEY"),
		SecretKey: os.Getenv("ALPACA_API_SECRET"),
		DataBase:  "https://data.alpaca.markets",
		Client:    &http.Client{Timeout: 15 * time.Second},
		Retry:     utils.DefaultRetryConfig(),
	}
}

// GetDailyBars fetches up to limit daily bars ending at asOf.
func (bc *BarClient) GetDailyBars(ctx context.Context, symbol string, limit int, asOf time.Time) ([]Bar, error) {
	start := asOf.AddDate(0, 0, -(limit*7)/5 - 10) // pad for weekends/holidays
	apiURL := fmt.Sprintf(
		"%s/v2/stocks/%s/bars?timeframe=1Day&limit=%d&start=%s&end=%s",
		bc.DataBase, url.PathEscape(symbol), limit,
		start.Format(time.RFC3339), asOf.Format(time.RFC3339),
	)

	var bars []Bar
	err := utils.RetryWithBackoff(func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("APCA-API-KEY-ID", bc.APIKey)
		req.Header.Set("APCA-API-SECRET-KEY", bc.SecretKey)

		resp, err := bc.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden {
			// account tier without this data; treat as no history
			bars = nil
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API returned status %d", resp.StatusCode)
		}

		var r struct {
			Bars []Bar `json:"bars"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return err
		}
		bars = r.Bars
		return nil
	}, bc.Retry)

	return bars, err
}
