package wca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

func liveRecord(id string, offsetDays int) map[string]interface{} {
	start := testToday.AddDate(0, 0, offsetDays)
	return map[string]interface{}{
		"id":           id,
		"name":         id + " Open",
		"city":         "Springfield",
		"country":      "United States",
		"start_date":   start.Format("2006-01-02"),
		"end_date":     start.AddDate(0, 0, 1).Format("2006-01-02"),
		"event_ids":    []string{"333", "222"},
		"venue":        "Community Hall",
		"country_iso2": "US",
	}
}

func livePage(page, count int) string {
	records := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, liveRecord(fmt.Sprintf("US-p%d-%03d", page, i), page*7+i))
	}
	data, _ := json.Marshal(records)
	return string(data)
}

func newLiveServer(t *testing.T, pageCounts map[int]int, failPages map[int]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/competitions", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		if r.URL.Query().Get("country_iso2") == "FR" {
			http.NotFound(w, r)
			return
		}
		if status, ok := failPages[page]; ok {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, livePage(page, pageCounts[page]))
	}))
}

func TestFetchLiveReassemblesPagesInOrder(t *testing.T) {
	srv := newLiveServer(t, map[int]int{1: pageSize, 2: pageSize, 3: 20}, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "", GenerationLive, nil)
	comps := client.FetchCountryCompetitions(context.Background(), "US", testToday)

	require.Len(t, comps, 120)
	assert.Equal(t, "US-p1-000", comps[0].Id)
	assert.Equal(t, "US-p2-000", comps[pageSize].Id)
	assert.Equal(t, "US-p3-019", comps[119].Id)
	for _, comp := range comps {
		assert.Equal(t, "US", comp.CountryCode)
	}
}

func TestFetchLiveStopsAtFirstShortPage(t *testing.T) {
	// Page 3 has data but page 2 is short, so page 3 must be discarded.
	srv := newLiveServer(t, map[int]int{1: pageSize, 2: 10, 3: pageSize}, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "", GenerationLive, nil)
	comps := client.FetchCountryCompetitions(context.Background(), "US", testToday)
	assert.Len(t, comps, pageSize+10)
}

func TestFetchLiveNotFoundYieldsEmpty(t *testing.T) {
	srv := newLiveServer(t, nil, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "", GenerationLive, nil)
	comps := client.FetchCountryCompetitions(context.Background(), "FR", testToday)
	assert.Empty(t, comps)
}

func TestFetchLiveFailedPageDegradesToEmptyPage(t *testing.T) {
	srv := newLiveServer(t, map[int]int{1: pageSize, 2: pageSize}, map[int]int{2: http.StatusInternalServerError})
	defer srv.Close()

	client := NewClient(srv.URL, "", GenerationLive, nil)
	comps := client.FetchCountryCompetitions(context.Background(), "US", testToday)
	// The failing page counts as empty, ending pagination after page 1.
	assert.Len(t, comps, pageSize)
}

func TestFetchLiveTimeoutDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, livePage(1, 1))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", GenerationLive, nil)
	client.HTTPClient = &http.Client{Timeout: 10 * time.Millisecond}
	comps := client.FetchCountryCompetitions(context.Background(), "DE", testToday)
	assert.Empty(t, comps)
}

func TestFetchLiveMalformedPayloadDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected": true}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", GenerationLive, nil)
	comps := client.FetchCountryCompetitions(context.Background(), "DE", testToday)
	assert.Empty(t, comps)
}

func TestFetchMirrorDecodesWrappedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/BE.json", r.URL.Path)
		fmt.Fprint(w, `{"items":[{
			"id": "BrusselsOpen2026",
			"name": "Brussels Open 2026",
			"city": "Brussels",
			"country": "Belgium",
			"date": {"from": "2026-10-03", "till": "2026-10-04", "numberOfDays": 2},
			"events": ["333", "444"],
			"venue": {"name": "Expo Hall", "coordinates": {"latitude": 50.85, "longitude": 4.35}}
		}]}`)
	}))
	defer srv.Close()

	client := NewClient("", srv.URL, GenerationMirror, nil)
	comps := client.FetchCountryCompetitions(context.Background(), "BE", testToday)

	require.Len(t, comps, 1)
	comp := comps[0]
	assert.Equal(t, "BrusselsOpen2026", comp.Id)
	assert.Equal(t, "BE", comp.CountryCode)
	assert.Equal(t, 2, comp.Date.NumberOfDays)
	assert.Equal(t, "Expo Hall", comp.Venue.Name)
	require.NotNil(t, comp.Venue.Coordinates.Latitude)
	assert.InDelta(t, 50.85, *comp.Venue.Coordinates.Latitude, 1e-9)
}

func TestNormalizeDerivesInclusiveDayCount(t *testing.T) {
	comp, ok := normalize(rawCompetition{
		Name:      "Span Test",
		StartDate: "2026-09-10",
		EndDate:   "2026-09-14",
	}, "US")
	require.True(t, ok)
	assert.Equal(t, 5, comp.Date.NumberOfDays)

	single, ok := normalize(rawCompetition{
		Name:      "One Day",
		StartDate: "2026-09-10",
		EndDate:   "2026-09-10",
	}, "US")
	require.True(t, ok)
	assert.Equal(t, 1, single.Date.NumberOfDays)
}

func TestNormalizeFallsBackToSlugId(t *testing.T) {
	comp, ok := normalize(rawCompetition{
		Name:      "Café Müller's Cup",
		StartDate: "2026-09-10",
		EndDate:   "2026-09-10",
	}, "DE")
	require.True(t, ok)
	assert.Equal(t, "CafeMullersCup", comp.Id)
}

func TestNormalizeDropsUnparsableDates(t *testing.T) {
	_, ok := normalize(rawCompetition{Name: "Broken", StartDate: "soon"}, "US")
	assert.False(t, ok)
	_, ok = normalize(rawCompetition{Name: "Missing"}, "US")
	assert.False(t, ok)
}

func TestNormalizeDedupesAndSortsEvents(t *testing.T) {
	comp, ok := normalize(rawCompetition{
		Name:      "Events Test",
		StartDate: "2026-09-10",
		EndDate:   "2026-09-10",
		EventIds:  []string{"pyram", "333", "pyram", "222", ""},
	}, "US")
	require.True(t, ok)
	assert.Equal(t, []string{"222", "333", "pyram"}, comp.Events)
}

func TestNormalizeDefaultsMissingEventsAndCoordinates(t *testing.T) {
	comp, ok := normalize(rawCompetition{
		Name:      "Bare Test",
		StartDate: "2026-09-10",
		EndDate:   "2026-09-11",
		Venue:     json.RawMessage(`"Some Hall"`),
	}, "US")
	require.True(t, ok)
	assert.Empty(t, comp.Events)
	assert.Equal(t, "Some Hall", comp.Venue.Name)
	assert.Nil(t, comp.Venue.Coordinates.Latitude)
	assert.Nil(t, comp.Venue.Coordinates.Longitude)
}

func TestNormalizeUsesFlatCoordinateFields(t *testing.T) {
	lat, lon := 40.71, -74.0
	comp, ok := normalize(rawCompetition{
		Name:             "Flat Coords",
		StartDate:        "2026-09-10",
		EndDate:          "2026-09-10",
		LatitudeDegrees:  &lat,
		LongitudeDegrees: &lon,
	}, "US")
	require.True(t, ok)
	require.NotNil(t, comp.Venue.Coordinates.Latitude)
	assert.InDelta(t, 40.71, *comp.Venue.Coordinates.Latitude, 1e-9)
}

func TestHighVolumeCountriesGetHigherPageCap(t *testing.T) {
	assert.Equal(t, highVolumeMaxPages, maxPagesFor("US"))
	assert.Equal(t, defaultMaxPages, maxPagesFor("BE"))
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	_, err := decodeCompetitions([]byte("<html>"), "US")
	assert.Error(t, err)
}
