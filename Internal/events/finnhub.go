package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/fazecat/optionsmith/Internal/utils"
	"github.com/fazecat/optionsmith/Internal/utils/formatting"
)

// FinnhubCalendar looks up upcoming earnings dates through the Finnhub
// earnings calendar endpoint. A missing or failed lookup reports the event
// date as unknown rather than returning an error to the pipeline.
type FinnhubCalendar struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Retry   utils.RetryConfig
	AsOf    time.Time
	Horizon int // days ahead to search
}

func NewFinnhubCalendar(asOf time.Time) *FinnhubCalendar {
	return &FinnhubCalendar{
		APIKey:  os.Getenv("FINNHUB_API_KEY"),
		BaseURL: "https://finnhub.io/api/v1",
		Client:  &http.Client{Timeout: 10 * time.Second},
		Retry:   utils.DefaultRetryConfig(),
		AsOf:    asOf,
		Horizon: 90,
	}
}

type earningsResponse struct {
	EarningsCalendar []struct {
		Date   string `json:"date"`
		Symbol string `json:"symbol"`
	} `json:"earningsCalendar"`
}

func (fc *FinnhubCalendar) DaysToNextEvent(ctx context.Context, instrument string) (int, bool, error) {
	if fc.APIKey == "" {
		return 0, false, nil
	}

	apiURL := fmt.Sprintf("%s/calendar/earnings?from=%s&to=%s&symbol=%s&token=%s",
		fc.BaseURL,
		fc.AsOf.Format("2006-01-02"),
		fc.AsOf.AddDate(0, 0, fc.Horizon).Format("2006-01-02"),
		url.QueryEscape(instrument),
		url.QueryEscape(fc.APIKey),
	)

	var resp earningsResponse
	err := utils.RetryWithBackoff(func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
		if err != nil {
			return err
		}
		httpResp, err := fc.Client.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("finnhub returned status %d", httpResp.StatusCode)
		}
		return json.NewDecoder(httpResp.Body).Decode(&resp)
	}, fc.Retry)
	if err != nil {
		// calendar-provider failure: unknown, never blocking
		return 0, false, nil
	}

	best := -1
	for _, entry := range resp.EarningsCalendar {
		eventDate := formatting.ParseDate(entry.Date)
		if eventDate.IsZero() || eventDate.Before(fc.AsOf) {
			continue
		}
		days := int(eventDate.Sub(fc.AsOf).Hours() / 24)
		if best == -1 || days < best {
			best = days
		}
	}
	if best == -1 {
		return 0, false, nil
	}
	return best, true, nil
}
