package wca

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/models"
	"github.com/wcatools/competition-finder/pkg/slug"
)

// rawCompetition is a superset of the two upstream record layouts. The
// mirror nests date/venue objects; the live API uses flat snake_case fields
// and a plain-string venue. Whichever fields are populated win.
type rawCompetition struct {
	Id      string   `json:"id"`
	Name    string   `json:"name"`
	City    string   `json:"city"`
	Country string   `json:"country"`
	Date    rawDate  `json:"date"`
	Events  []string `json:"events"`

	// Venue is an object in mirror payloads and a string in live ones.
	Venue json.RawMessage `json:"venue"`

	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	EventIds         []string `json:"event_ids"`
	CountryISO2      string   `json:"country_iso2"`
	LatitudeDegrees  *float64 `json:"latitude_degrees"`
	LongitudeDegrees *float64 `json:"longitude_degrees"`
}

type rawDate struct {
	From         string `json:"from"`
	Till         string `json:"till"`
	NumberOfDays int    `json:"numberOfDays"`
}

type rawVenue struct {
	Name        string `json:"name"`
	Coordinates struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"coordinates"`
}

// decodeCompetitions handles both payload shapes transparently: a flat JSON
// array (live API) or an object wrapping an items array (mirror).
func decodeCompetitions(data []byte, countryCode string) ([]models.Competition, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")

	var raws []rawCompetition
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Items []rawCompetition `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		raws = wrapper.Items
	} else {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, err
		}
	}

	comps := make([]models.Competition, 0, len(raws))
	for _, raw := range raws {
		if comp, ok := normalize(raw, countryCode); ok {
			comps = append(comps, comp)
		}
	}
	return comps, nil
}

// normalize maps one raw record into the canonical Competition. The
// requested country code is always stamped on the record; older payloads
// never carried it. Records without a parsable date range are dropped.
func normalize(raw rawCompetition, countryCode string) (models.Competition, bool) {
	from, fromOk := parseDay(firstNonEmpty(raw.Date.From, raw.StartDate))
	till, tillOk := parseDay(firstNonEmpty(raw.Date.Till, raw.EndDate))
	if !fromOk || !tillOk {
		logger.Debug("Dropping record %q: unparsable date range", raw.Name)
		return models.Competition{}, false
	}
	if till.Before(from) {
		till = from
	}

	id := raw.Id
	if id == "" {
		id = slug.Make(raw.Name)
	}

	events := raw.Events
	if len(events) == 0 {
		events = raw.EventIds
	}

	comp := models.Competition{
		Id:          id,
		Name:        raw.Name,
		City:        raw.City,
		Country:     raw.Country,
		CountryCode: countryCode,
		Date: models.DateRange{
			From:         from,
			Till:         till,
			NumberOfDays: inclusiveDays(from, till),
		},
		Events: dedupeSorted(events),
		Venue:  normalizeVenue(raw),
	}
	return comp, true
}

func normalizeVenue(raw rawCompetition) models.Venue {
	var v models.Venue

	if len(raw.Venue) > 0 {
		var obj rawVenue
		if err := json.Unmarshal(raw.Venue, &obj); err == nil {
			v.Name = obj.Name
			v.Coordinates.Latitude = obj.Coordinates.Latitude
			v.Coordinates.Longitude = obj.Coordinates.Longitude
		} else {
			var name string
			if json.Unmarshal(raw.Venue, &name) == nil {
				v.Name = name
			}
		}
	}

	if v.Coordinates.Latitude == nil || v.Coordinates.Longitude == nil {
		v.Coordinates.Latitude = raw.LatitudeDegrees
		v.Coordinates.Longitude = raw.LongitudeDegrees
	}
	return v
}

// inclusiveDays is the day count between two dates, counting both ends.
func inclusiveDays(from, till time.Time) int {
	days := int(till.Sub(from)/(24*time.Hour)) + 1
	if days < 1 {
		days = 1
	}
	return days
}

func parseDay(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// dedupeSorted returns the unique event codes in a stable sorted order for
// display of the filter list.
func dedupeSorted(events []string) []string {
	seen := make(map[string]bool, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
