// Package oracle implements the external spot-price source consulted at
// settlement time.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/uuzor/predictx/internal/domain"
)

// Client is the REST client for the price oracle API. It implements
// domain.PriceOracle.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new oracle client. timeout bounds every lookup so a
// hanging oracle cannot stall a settlement job beyond its own deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// spotResponse is the oracle's price payload. Price arrives as a string to
// preserve precision across JSON boundaries.
type spotResponse struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
}

// CurrentPrice returns the current spot price for the given asset.
func (c *Client) CurrentPrice(ctx context.Context, assetID string) (float64, error) {
	path := fmt.Sprintf("/v1/spot/%s", url.PathEscape(assetID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: spot %s: %w: %w", assetID, domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("oracle: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("oracle: asset %s: %w", assetID, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle: spot %s: %w: status %d: %s",
			assetID, domain.ErrOracleUnavailable, resp.StatusCode, truncate(body, 200))
	}

	var spot spotResponse
	if err := json.Unmarshal(body, &spot); err != nil {
		return 0, fmt.Errorf("oracle: decode spot %s: %w", assetID, err)
	}

	price, err := strconv.ParseFloat(spot.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("oracle: parse price %q for %s: %w", spot.Price, assetID, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("oracle: non-positive price %g for %s", price, assetID)
	}

	return price, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
