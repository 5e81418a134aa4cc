package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultURL     = "https://api.bigdatacloud.net/data/reverse-geocode-client"
	requestTimeout = 10 * time.Second
)

// Client resolves a position to an ISO 3166-1 alpha-2 country code, used to
// seed location-based filtering from the user's reported coordinates.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		URL:        defaultURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// CountryCode reverse-geocodes the coordinates. Callers treat an error as
// "location unavailable" and fall back to chronological sorting.
func (c *Client) CountryCode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("localityLanguage", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create reverse-geocode request: %w", err)
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse-geocode request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse-geocode request returned status %d", res.StatusCode)
	}

	var payload struct {
		CountryCode string `json:"countryCode"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode reverse-geocode response: %w", err)
	}
	return payload.CountryCode, nil
}
