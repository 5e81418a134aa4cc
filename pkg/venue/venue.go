package venue

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/models"
)

const (
	defaultBaseURL = "https://www.worldcubeassociation.org/competitions"
	lookupTimeout  = 10 * time.Second
)

type cacheEntry struct {
	coords models.Coordinates
	ok     bool
}

// Cache resolves venue coordinates for competitions whose upstream record
// ships without them, by scraping the maps link off the competition page.
// Results, including failed lookups, are kept in memory so each competition
// page is fetched at most once per process.
type Cache struct {
	BaseURL    string
	HTTPClient *http.Client

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache(baseURL string) *Cache {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Cache{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: lookupTimeout},
		entries:    make(map[string]cacheEntry),
	}
}

// Lookup returns the coordinates for a competition id, fetching and caching
// on first use. ok is false when the page has no usable maps link.
func (c *Cache) Lookup(ctx context.Context, competitionId string) (models.Coordinates, bool) {
	if competitionId == "" {
		return models.Coordinates{}, false
	}

	c.mu.Lock()
	if entry, found := c.entries[competitionId]; found {
		c.mu.Unlock()
		return entry.coords, entry.ok
	}
	c.mu.Unlock()

	logger.Debug("No venue coordinate cache entry for %s. Fetching competition page.", competitionId)
	coords, ok := c.fetch(ctx, competitionId)

	c.mu.Lock()
	c.entries[competitionId] = cacheEntry{coords: coords, ok: ok}
	c.mu.Unlock()

	return coords, ok
}

func (c *Cache) fetch(ctx context.Context, competitionId string) (models.Coordinates, bool) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+url.PathEscape(competitionId), nil)
	if err != nil {
		logger.Error("Failed to create venue request for %s: %v", competitionId, err)
		return models.Coordinates{}, false
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.Error("Venue page request failed for %s: %v", competitionId, err)
		return models.Coordinates{}, false
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		logger.Warn("Venue page for %s returned status %d", competitionId, res.StatusCode)
		return models.Coordinates{}, false
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		logger.Error("Failed to parse venue page for %s: %v", competitionId, err)
		return models.Coordinates{}, false
	}

	var coords models.Coordinates
	var found bool
	doc.Find("a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, exists := s.Attr("href")
		if !exists || !strings.Contains(href, "google.com/maps") {
			return true
		}
		if lat, lon, ok := parseMapsLink(href); ok {
			coords = models.Coordinates{Latitude: &lat, Longitude: &lon}
			found = true
			return false
		}
		return true
	})

	if !found {
		logger.Debug("No maps link with coordinates on venue page for %s", competitionId)
	}
	return coords, found
}

// parseMapsLink extracts "lat,lon" out of a Google Maps href, either from
// the q query parameter or from a /place/ path segment.
func parseMapsLink(href string) (float64, float64, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return 0, 0, false
	}

	candidate := u.Query().Get("q")
	if candidate == "" {
		if idx := strings.Index(u.Path, "/place/"); idx >= 0 {
			rest := u.Path[idx+len("/place/"):]
			candidate = strings.SplitN(rest, "/", 2)[0]
		}
	}

	parts := strings.Split(candidate, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
