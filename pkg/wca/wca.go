package wca

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/models"
	"github.com/wcatools/competition-finder/pkg/venue"
)

// Upstream generations. The live paginated API is authoritative; the legacy
// JSON-dump mirror serves one document per country and is kept as a
// configurable fallback.
const (
	GenerationLive   = "live"
	GenerationMirror = "mirror"
)

const (
	defaultAPIBaseURL    = "https://www.worldcubeassociation.org/api/v0"
	defaultMirrorBaseURL = "https://raw.githubusercontent.com/robiningelbrecht/wca-rest-api/master/api/competitions"

	pageSize       = 50
	requestTimeout = 10 * time.Second

	// Page caps are policy, not architecture: countries known to list many
	// competitions get a higher ceiling.
	defaultMaxPages    = 4
	highVolumeMaxPages = 10
)

var highVolumeCountries = map[string]bool{
	"US": true,
	"CN": true,
	"IN": true,
	"BR": true,
	"AU": true,
}

// Client fetches and normalizes competition records for single countries.
// It never returns an error: timeouts, network failures, unexpected payloads
// and non-2xx statuses all degrade to an empty result and are logged.
type Client struct {
	APIBaseURL    string
	MirrorBaseURL string
	Generation    string
	HTTPClient    *http.Client

	// Venues, when set, resolves coordinates for records that arrive
	// without them.
	Venues *venue.Cache
}

func NewClient(apiBaseURL, mirrorBaseURL, generation string, venues *venue.Cache) *Client {
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	if mirrorBaseURL == "" {
		mirrorBaseURL = defaultMirrorBaseURL
	}
	if generation == "" {
		generation = GenerationLive
	}
	return &Client{
		APIBaseURL:    apiBaseURL,
		MirrorBaseURL: mirrorBaseURL,
		Generation:    generation,
		HTTPClient:    &http.Client{},
		Venues:        venues,
	}
}

// FetchCountryCompetitions returns the normalized competitions for one
// country starting at today. A country with no data yields an empty slice,
// as does any failure.
func (c *Client) FetchCountryCompetitions(ctx context.Context, countryCode string, today time.Time) []models.Competition {
	var comps []models.Competition
	if c.Generation == GenerationMirror {
		comps = c.fetchFromMirror(ctx, countryCode)
	} else {
		comps = c.fetchFromLiveAPI(ctx, countryCode, today)
	}

	if c.Venues != nil {
		c.fillMissingCoordinates(ctx, comps)
	}

	logger.Info("Country %s: %d competitions fetched", countryCode, len(comps))
	return comps
}

// maxPagesFor returns the page cap for a country code.
func maxPagesFor(countryCode string) int {
	if highVolumeCountries[countryCode] {
		return highVolumeMaxPages
	}
	return defaultMaxPages
}

// fetchFromLiveAPI issues all page requests for the country concurrently,
// reassembles them in page order once every request has settled, and stops
// concatenating at the first short page (pages are served in order, so a
// short page means end of data).
func (c *Client) fetchFromLiveAPI(ctx context.Context, countryCode string, today time.Time) []models.Competition {
	pageCap := maxPagesFor(countryCode)
	pages := make([][]models.Competition, pageCap)

	var wg sync.WaitGroup
	for i := 0; i < pageCap; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			pages[page] = c.fetchPage(ctx, countryCode, today, page+1)
		}(i)
	}
	wg.Wait()

	var comps []models.Competition
	for _, page := range pages {
		comps = append(comps, page...)
		if len(page) < pageSize {
			break
		}
	}
	return comps
}

func (c *Client) fetchPage(ctx context.Context, countryCode string, today time.Time, page int) []models.Competition {
	reqURL, err := url.Parse(c.APIBaseURL + "/competitions")
	if err != nil {
		logger.Error("Failed to parse API URL: %v", err)
		return nil
	}
	q := reqURL.Query()
	q.Set("country_iso2", countryCode)
	q.Set("start", today.Format("2006-01-02"))
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("sort", "start_date")
	reqURL.RawQuery = q.Encode()

	body, status := c.get(ctx, reqURL.String())
	switch {
	case status == http.StatusNotFound:
		logger.Info("No data found for country code: %s", countryCode)
		return nil
	case status != http.StatusOK:
		return nil
	}

	comps, err := decodeCompetitions(body, countryCode)
	if err != nil {
		logger.Error("Unexpected payload for %s page %d: %v", countryCode, page, err)
		return nil
	}
	return comps
}

// fetchFromMirror fetches the single legacy JSON document for the country.
func (c *Client) fetchFromMirror(ctx context.Context, countryCode string) []models.Competition {
	body, status := c.get(ctx, c.MirrorBaseURL+"/"+url.PathEscape(countryCode)+".json")
	switch {
	case status == http.StatusNotFound:
		logger.Info("No data found for country code: %s", countryCode)
		return nil
	case status != http.StatusOK:
		return nil
	}

	comps, err := decodeCompetitions(body, countryCode)
	if err != nil {
		logger.Error("Unexpected mirror payload for %s: %v", countryCode, err)
		return nil
	}
	return comps
}

// get performs one bounded request and returns the body and status code.
// A transport-level failure is reported as status 0 with a nil body; the
// timeout aborts this request only.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, int) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		logger.Error("Failed to create request: %v", err)
		return nil, 0
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.Error("HTTP request failed: %v", err)
		return nil, 0
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode != http.StatusNotFound {
			logger.Error("Request to %s returned status %d", rawURL, res.StatusCode)
		}
		return nil, res.StatusCode
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		logger.Error("Failed to read response body: %v", err)
		return nil, 0
	}
	return body, res.StatusCode
}

func (c *Client) fillMissingCoordinates(ctx context.Context, comps []models.Competition) {
	for i := range comps {
		coords := comps[i].Venue.Coordinates
		if coords.Latitude != nil && coords.Longitude != nil {
			continue
		}
		if resolved, ok := c.Venues.Lookup(ctx, comps[i].Id); ok {
			comps[i].Venue.Coordinates = resolved
		}
	}
}
