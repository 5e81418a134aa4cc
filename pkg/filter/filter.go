package filter

import (
	"sort"
	"strings"
	"time"

	"github.com/wcatools/competition-finder/pkg/geo"
	"github.com/wcatools/competition-finder/pkg/models"
)

// SortMode selects the ordering of the filtered list.
type SortMode int

const (
	// SortChronological orders ascending by start date. Default.
	SortChronological SortMode = iota
	// SortDistance orders ascending by Haversine distance from the user
	// location. Only effective when Options.UserLocation is set.
	SortDistance
)

// Options control sorting and the reference time of the upcoming-only rule.
type Options struct {
	Sort         SortMode
	UserLocation *models.Geocoordinates
	// Now overrides the current time; zero means time.Now(). Time of day is
	// truncated before comparing against competition end dates.
	Now time.Time
}

// Apply filters and sorts the records without mutating the input. Past
// competitions (inclusive end date before today) are excluded before any
// facet applies; the facets themselves are AND-combined.
func Apply(comps []models.Competition, state models.FilterState, opts Options) []models.Competition {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := make([]models.Competition, 0, len(comps))
	for _, comp := range comps {
		if comp.Date.Till.Before(today) {
			continue
		}
		if !matchesEvents(comp, state.SelectedEvents) {
			continue
		}
		if !matchesDuration(comp, state.Duration) {
			continue
		}
		if !matchesMonth(comp, state.Month) {
			continue
		}
		if !matchesSearch(comp, state.SearchQuery) {
			continue
		}
		out = append(out, comp)
	}

	if opts.Sort == SortDistance && opts.UserLocation != nil {
		sortByDistance(out, *opts.UserLocation)
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Date.From.Before(out[j].Date.From)
		})
	}
	return out
}

// matchesEvents requires every selected event to be held at the competition.
// An empty selection matches everything.
func matchesEvents(comp models.Competition, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	held := make(map[string]bool, len(comp.Events))
	for _, e := range comp.Events {
		held[e] = true
	}
	for _, e := range selected {
		if !held[e] {
			return false
		}
	}
	return true
}

func matchesDuration(comp models.Competition, duration string) bool {
	switch duration {
	case "":
		return true
	case "1":
		return comp.Date.NumberOfDays == 1
	case "2":
		return comp.Date.NumberOfDays == 2
	case "3":
		return comp.Date.NumberOfDays >= 3
	default:
		return true
	}
}

func matchesMonth(comp models.Competition, month *int) bool {
	if month == nil {
		return true
	}
	return int(comp.Date.From.Month())-1 == *month
}

// matchesSearch is a case-insensitive substring match on city or country.
func matchesSearch(comp models.Competition, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(comp.City), q) ||
		strings.Contains(strings.ToLower(comp.Country), q)
}

// sortByDistance orders by distance from the user location. A pair where
// either record lacks venue coordinates compares equal; the stable sort then
// keeps such records in their incoming relative order.
func sortByDistance(comps []models.Competition, loc models.Geocoordinates) {
	sort.SliceStable(comps, func(i, j int) bool {
		di, iok := distanceTo(loc, comps[i])
		dj, jok := distanceTo(loc, comps[j])
		if !iok || !jok {
			return false
		}
		return di < dj
	})
}

func distanceTo(loc models.Geocoordinates, comp models.Competition) (float64, bool) {
	coords := comp.Venue.Coordinates
	if coords.Latitude == nil || coords.Longitude == nil {
		return 0, false
	}
	return geo.DistanceKm(loc.Latitude, loc.Longitude, *coords.Latitude, *coords.Longitude), true
}
