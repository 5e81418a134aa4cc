package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wcatools/competition-finder/pkg/geo"
	"github.com/wcatools/competition-finder/pkg/models"
	"github.com/wcatools/competition-finder/pkg/slug"
)

const (
	competitionBaseURL = "https://www.worldcubeassociation.org/competitions"
	flagBaseURL        = "https://flagcdn.com/w20"
)

var eventNames = map[string]string{
	"222":    "2x2x2 Cube",
	"333":    "3x3x3 Cube",
	"444":    "4x4x4 Cube",
	"555":    "5x5x5 Cube",
	"666":    "6x6x6 Cube",
	"777":    "7x7x7 Cube",
	"333bf":  "3x3x3 Blindfolded",
	"333fm":  "3x3x3 Fewest Moves",
	"333mbf": "3x3x3 Multi Blind",
	"333oh":  "3x3x3 One-Handed",
	"444bf":  "4x4x4 Blindfolded",
	"555bf":  "5x5x5 Blindfolded",
	"clock":  "Clock",
	"minx":   "Megaminx",
	"pyram":  "Pyraminx",
	"skewb":  "Skewb",
	"sq1":    "Square-1",
}

// Events retired from the official program; they still appear in historical
// records but are kept out of the filter list.
var deprecatedEvents = map[string]bool{
	"333ft":  true,
	"333mbo": true,
	"magic":  true,
	"mmagic": true,
}

// Row is one renderable line of the competition list. Rendering itself is a
// collaborator concern; everything here is plain strings.
type Row struct {
	Name      string `json:"name"`
	FlagURL   string `json:"flagUrl"`
	Location  string `json:"location"`
	DateRange string `json:"dateRange"`
	Distance  string `json:"distance,omitempty"`
	URL       string `json:"url"`
}

// Options adjust row output. MultiCountry switches the location text to
// include the country; UserLocation enables the distance label for records
// that have venue coordinates.
type Options struct {
	MultiCountry bool
	UserLocation *models.Geocoordinates
}

// Rows renders the (already filtered and sorted) competitions.
func Rows(comps []models.Competition, opts Options) []Row {
	rows := make([]Row, 0, len(comps))
	for _, comp := range comps {
		rows = append(rows, row(comp, opts))
	}
	return rows
}

func row(comp models.Competition, opts Options) Row {
	name := comp.Name
	if name == "" {
		name = "N/A"
	}

	id := comp.Id
	if id == "" {
		id = slug.Make(comp.Name)
	}

	r := Row{
		Name:      name,
		FlagURL:   fmt.Sprintf("%s/%s.png", flagBaseURL, strings.ToLower(comp.CountryCode)),
		Location:  locationText(comp, opts.MultiCountry),
		DateRange: DateRange(comp.Date.From, comp.Date.Till),
		URL:       competitionBaseURL + "/" + id,
	}

	if opts.UserLocation != nil {
		coords := comp.Venue.Coordinates
		if coords.Latitude != nil && coords.Longitude != nil {
			km := geo.DistanceKm(opts.UserLocation.Latitude, opts.UserLocation.Longitude,
				*coords.Latitude, *coords.Longitude)
			r.Distance = fmt.Sprintf("%.0f km", km)
		}
	}
	return r
}

func locationText(comp models.Competition, multiCountry bool) string {
	city := comp.City
	if city == "" {
		city = "N/A"
	}
	if !multiCountry {
		return city
	}
	country := comp.Country
	if country == "" {
		country = "N/A"
	}
	return city + ", " + country
}

// DateRange renders "Sep 12, 2026" for single-day competitions and
// "Sep 12 - 13, 2026" otherwise.
func DateRange(from, till time.Time) string {
	if from.Equal(till) {
		return from.Format("Jan 2, 2006")
	}
	return fmt.Sprintf("%s - %d, %d", from.Format("Jan 2"), till.Day(), from.Year())
}

// EventName maps an event code to its display name, falling back to the
// code itself.
func EventName(code string) string {
	if name, ok := eventNames[code]; ok {
		return name
	}
	return code
}

// EventOptions collects the unique, sorted event codes across the loaded
// competitions for the filter list, skipping deprecated events.
func EventOptions(comps []models.Competition) []string {
	seen := make(map[string]bool)
	var out []string
	for _, comp := range comps {
		for _, e := range comp.Events {
			if deprecatedEvents[e] || seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// EmptyReason distinguishes the empty-result placeholders.
type EmptyReason int

const (
	ReasonNoCountries EmptyReason = iota
	ReasonLoading
	ReasonNoMatches
)

// EmptyState is the informational placeholder shown instead of rows.
func EmptyState(reason EmptyReason) string {
	switch reason {
	case ReasonNoCountries:
		return "Select at least one country to see upcoming competitions."
	case ReasonLoading:
		return "Loading competitions..."
	default:
		return "No upcoming competitions found for the selected countries."
	}
}
