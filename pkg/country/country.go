package country

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/models"
)

const (
	defaultURL     = "https://restcountries.com/v3.1/all?fields=name,cca2"
	requestTimeout = 10 * time.Second
)

// Client fetches the selectable country set. The list changes rarely, so
// the first successful response is memoized for the process lifetime.
type Client struct {
	URL        string
	HTTPClient *http.Client

	mu     sync.Mutex
	cached []models.Country
}

func NewClient() *Client {
	return &Client{
		URL:        defaultURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// List returns all countries sorted alphabetically by common name.
func (c *Client) List(ctx context.Context) ([]models.Country, error) {
	c.mu.Lock()
	if c.cached != nil {
		out := make([]models.Country, len(c.cached))
		copy(out, c.cached)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	countries, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = countries
	c.mu.Unlock()

	out := make([]models.Country, len(countries))
	copy(out, countries)
	return out, nil
}

func (c *Client) fetch(ctx context.Context) ([]models.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create country list request: %w", err)
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("country list request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("country list request returned status %d", res.StatusCode)
	}

	var raw []struct {
		Name struct {
			Common string `json:"common"`
		} `json:"name"`
		Cca2 string `json:"cca2"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode country list: %w", err)
	}

	countries := make([]models.Country, 0, len(raw))
	for _, entry := range raw {
		if entry.Cca2 == "" {
			continue
		}
		countries = append(countries, models.Country{Name: entry.Name.Common, Code: entry.Cca2})
	}
	sort.Slice(countries, func(i, j int) bool {
		return countries[i].Name < countries[j].Name
	})

	logger.Info("Loaded %d countries", len(countries))
	return countries, nil
}
