package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wcatools/competition-finder/pkg/aggregator"
	"github.com/wcatools/competition-finder/pkg/models"
	"github.com/wcatools/competition-finder/pkg/prefs"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("WCF_SCHEDULER_ENABLED", "")
	t.Setenv("WCF_SCHEDULER_CRON", "")
	t.Setenv("WCF_SCHEDULER_COUNTRIES", "")

	cfg := FromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "*/20 * * * *", cfg.CronSpec)
	assert.Empty(t, cfg.Countries)
}

func TestFromEnvReadsOverrides(t *testing.T) {
	t.Setenv("WCF_SCHEDULER_ENABLED", "1")
	t.Setenv("WCF_SCHEDULER_CRON", "0 3 * * *")
	t.Setenv("WCF_SCHEDULER_COUNTRIES", "US,DE")

	cfg := FromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "0 3 * * *", cfg.CronSpec)
	assert.Equal(t, "US,DE", cfg.Countries)
}

func TestNewRejectsInvalidCronSpec(t *testing.T) {
	_, err := New(Config{CronSpec: "not a cron spec"}, aggregator.New(nil, nil), nil)
	assert.Error(t, err)
}

func TestReloadPicksUpNewConfig(t *testing.T) {
	t.Setenv("WCF_SCHEDULER_ENABLED", "")
	t.Setenv("WCF_SCHEDULER_CRON", "*/5 * * * *")
	t.Setenv("WCF_SCHEDULER_COUNTRIES", "FR")

	s, err := New(Config{CronSpec: "*/20 * * * *", Countries: "US"}, aggregator.New(nil, nil), nil)
	require.NoError(t, err)

	require.NoError(t, s.Reload())
	cfg := s.GetConfig()
	assert.Equal(t, "*/5 * * * *", cfg.CronSpec)
	assert.Equal(t, "FR", cfg.Countries)
	assert.False(t, cfg.Enabled)
}

func TestSplitCodes(t *testing.T) {
	assert.Nil(t, splitCodes(""))
	assert.Equal(t, []string{"US", "DE", "FR"}, splitCodes(" us, DE ,fr"))
}

type fetchRecorder struct {
	calls map[string]int
}

func (f *fetchRecorder) FetchCountryCompetitions(_ context.Context, countryCode string, _ time.Time) []models.Competition {
	f.calls[countryCode]++
	return nil
}

func TestWarmupFallsBackToPreferredCountries(t *testing.T) {
	store, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SetCountries([]string{"NL"}))

	rec := &fetchRecorder{calls: map[string]int{}}
	s, err := New(Config{CronSpec: "*/20 * * * *"}, aggregator.New(rec, nil), store)
	require.NoError(t, err)

	s.warmup("")
	assert.Equal(t, 1, rec.calls["NL"])
}

func TestWarmupPrefersConfiguredCountries(t *testing.T) {
	rec := &fetchRecorder{calls: map[string]int{}}
	s, err := New(Config{CronSpec: "*/20 * * * *"}, aggregator.New(rec, nil), nil)
	require.NoError(t, err)

	s.warmup("US,DE")
	assert.Equal(t, 1, rec.calls["US"])
	assert.Equal(t, 1, rec.calls["DE"])
}
