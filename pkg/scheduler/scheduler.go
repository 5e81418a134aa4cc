package scheduler

import (
	"context"
	"os"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/wcatools/competition-finder/pkg/aggregator"
	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/prefs"
)

type Config struct {
	Enabled   bool
	CronSpec  string // e.g. "*/20 * * * *" (server local time)
	Countries string // optional, comma-separated ISO codes, empty = preferred countries
}

// Scheduler re-aggregates competitions on a cron spec so the cache stays warm
// between user requests. When no countries are configured it warms whatever
// selection the preference store remembers.
type Scheduler struct {
	c      *cron.Cron
	agg    *aggregator.Aggregator
	prefs  *prefs.Store
	config Config
}

func FromEnv() Config {
	return Config{
		Enabled:   os.Getenv("WCF_SCHEDULER_ENABLED") == "true" || os.Getenv("WCF_SCHEDULER_ENABLED") == "1",
		CronSpec:  firstNonEmpty(os.Getenv("WCF_SCHEDULER_CRON"), "*/20 * * * *"),
		Countries: os.Getenv("WCF_SCHEDULER_COUNTRIES"),
	}
}

func New(cfg Config, agg *aggregator.Aggregator, preferences *prefs.Store) (*Scheduler, error) {
	s := &Scheduler{
		c:      cron.New(), // standard 5-field spec, runs in server local time
		agg:    agg,
		prefs:  preferences,
		config: cfg,
	}
	if _, err := s.c.AddFunc(cfg.CronSpec, func() { s.warmup(cfg.Countries) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	logger.Info("Starting scheduler (cron=%s, countries=%s)", s.config.CronSpec, s.config.Countries)
	s.c.Start()
}

func (s *Scheduler) Stop() {
	s.c.Stop()
}

// Reload re-reads the configuration from environment variables and restarts
// the cron runner when anything changed.
func (s *Scheduler) Reload() error {
	newConfig := FromEnv()

	if s.config == newConfig {
		logger.Info("Scheduler configuration unchanged, no restart needed")
		return nil
	}

	s.c.Stop()
	logger.Info("Stopped scheduler for configuration reload")

	s.config = newConfig
	s.c = cron.New()
	if newConfig.Enabled {
		if _, err := s.c.AddFunc(newConfig.CronSpec, func() { s.warmup(newConfig.Countries) }); err != nil {
			return err
		}
		s.c.Start()
		logger.Info("Scheduler restarted with new configuration (cron=%s, countries=%s)",
			newConfig.CronSpec, newConfig.Countries)
	} else {
		logger.Info("Scheduler disabled via configuration reload")
	}

	return nil
}

// GetConfig returns the current scheduler configuration.
func (s *Scheduler) GetConfig() Config {
	return s.config
}

func (s *Scheduler) warmup(countries string) {
	codes := splitCodes(countries)
	if len(codes) == 0 && s.prefs != nil {
		stored, err := s.prefs.Countries()
		if err != nil {
			logger.Warn("Scheduler could not read preferred countries: %s", err)
		}
		codes = stored
	}
	if len(codes) == 0 {
		logger.Info("Scheduler tick: no countries to warm up, skipping")
		return
	}

	logger.Info("Scheduler tick: warming up %d countries", len(codes))
	result, started := s.agg.Aggregate(context.Background(), codes, nil)
	if !started {
		logger.Info("Scheduler warmup skipped, an aggregation is already running")
		return
	}
	logger.Info("Scheduler warmup done, competitions fetched: %d", len(result))
}

func splitCodes(raw string) []string {
	if raw == "" {
		return nil
	}
	var codes []string
	for _, part := range strings.Split(raw, ",") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, strings.ToUpper(code))
		}
	}
	return codes
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
