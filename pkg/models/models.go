package models

import "time"

// Coordinates uses pointers because upstream records regularly lack a venue
// position. A nil latitude or longitude means "unknown", which excludes the
// record from any distance calculation.
type Coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type Venue struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

// DateRange covers the full span of a competition. NumberOfDays is the
// inclusive day count between From and Till and is always >= 1.
type DateRange struct {
	From         time.Time `json:"from"`
	Till         time.Time `json:"till"`
	NumberOfDays int       `json:"numberOfDays"`
}

// Competition is the canonical normalized record produced by the upstream
// adapter. Instances are never mutated after normalization; filtering and
// sorting operate on fresh slices.
type Competition struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	CountryCode string    `json:"countryCode"`
	Date        DateRange `json:"date"`
	Events      []string  `json:"events"`
	Venue       Venue     `json:"venue"`
}

// CacheEntry is the stored unit of the per-country competition cache.
// Timestamp is Unix milliseconds at write time.
type CacheEntry struct {
	CountryCode string        `json:"countryCode"`
	Timestamp   int64         `json:"timestamp"`
	Data        []Competition `json:"data"`
}

type Country struct {
	Name string `json:"name"`
	Code string `json:"cca2"`
}

// Geocoordinates is a known user position, as opposed to the nullable venue
// Coordinates above.
type Geocoordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FilterState holds the user-driven filter facets. Duration is one of
// "", "1", "2", "3" where "3" means three days or longer. Month is the
// 0-indexed calendar month of the competition start, nil for no filter.
type FilterState struct {
	SelectedEvents []string
	Duration       string
	Month          *int
	SearchQuery    string
}
