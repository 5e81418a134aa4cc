package aggregator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/wcatools/competition-finder/pkg/cache"
	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/models"
)

// Fetcher loads and normalizes the competitions of one country. It degrades
// to an empty slice instead of failing.
type Fetcher interface {
	FetchCountryCompetitions(ctx context.Context, countryCode string, today time.Time) []models.Competition
}

// Progress is emitted after each country resolves. Competitions holds a
// snapshot of the cumulative merged list so far, so an observer can render
// incrementally. A country that yielded nothing still counts as loaded.
type Progress struct {
	CountryCode  string
	Loaded       int
	Total        int
	Competitions []models.Competition
}

type ProgressFunc func(Progress)

// Aggregator coordinates per-country fetches through the cache. At most one
// aggregation is in flight at a time; concurrent attempts are ignored.
type Aggregator struct {
	fetcher Fetcher
	store   cache.Store
	busy    atomic.Bool
	now     func() time.Time
}

// New creates an Aggregator. store may be nil, in which case every country
// is fetched fresh.
func New(fetcher Fetcher, store cache.Store) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
	}
}

// Aggregate merges the competitions of the given countries in caller order.
// The boolean reports whether this call ran: a second call while another
// aggregation is pending does nothing and returns false. The merged list is
// a stable concatenation; sorting is the filter engine's job.
func (a *Aggregator) Aggregate(ctx context.Context, countryCodes []string, onProgress ProgressFunc) ([]models.Competition, bool) {
	if !a.busy.CompareAndSwap(false, true) {
		logger.Warn("Aggregation already in flight, ignoring request for %v", countryCodes)
		return nil, false
	}
	defer a.busy.Store(false)

	today := a.now()
	merged := []models.Competition{}
	for i, code := range countryCodes {
		merged = append(merged, a.loadCountry(ctx, code, today)...)

		if onProgress != nil {
			snapshot := make([]models.Competition, len(merged))
			copy(snapshot, merged)
			onProgress(Progress{
				CountryCode:  code,
				Loaded:       i + 1,
				Total:        len(countryCodes),
				Competitions: snapshot,
			})
		}
	}
	return merged, true
}

func (a *Aggregator) loadCountry(ctx context.Context, code string, today time.Time) []models.Competition {
	if a.store != nil {
		comps, hit, err := a.store.Get(code)
		if err != nil {
			logger.Error("Cache read failed for %s: %v", code, err)
		} else if hit {
			logger.Debug("Cache hit for %s (%d competitions)", code, len(comps))
			return comps
		}
	}

	comps := a.fetcher.FetchCountryCompetitions(ctx, code, today)

	if a.store != nil {
		if err := a.store.Put(code, comps); err != nil {
			logger.Error("Cache write failed for %s: %v", code, err)
		}
	}
	return comps
}
