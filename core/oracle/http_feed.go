package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

type priceResponse struct {
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	Timestamp int64  `json:"timestamp"`
}

// HTTPPriceFeed polls a JSON endpoint returning
// {"price":"<int>","decimals":<n>,"timestamp":<unix seconds>}.
type HTTPPriceFeed struct {
	URL    string
	Client *http.Client
}

func NewHTTPPriceFeed(url string, timeout time.Duration) *HTTPPriceFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPriceFeed{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPPriceFeed) ReadPrice(ctx context.Context) (PriceSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return PriceSnapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return PriceSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceSnapshot{}, fmt.Errorf("price feed %s: %d %s", f.URL, resp.StatusCode, body)
	}
	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return PriceSnapshot{}, fmt.Errorf("decode price: %w", err)
	}
	price, ok := new(big.Int).SetString(pr.Price, 10)
	if !ok {
		return PriceSnapshot{}, fmt.Errorf("bad price %q", pr.Price)
	}
	return PriceSnapshot{Price: price, Decimals: pr.Decimals, Timestamp: time.Unix(pr.Timestamp, 0).UTC()}, nil
}
