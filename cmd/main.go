package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wcatools/competition-finder/pkg/aggregator"
	"github.com/wcatools/competition-finder/pkg/cache"
	"github.com/wcatools/competition-finder/pkg/config"
	"github.com/wcatools/competition-finder/pkg/country"
	"github.com/wcatools/competition-finder/pkg/geocode"
	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/metrics"
	"github.com/wcatools/competition-finder/pkg/prefs"
	"github.com/wcatools/competition-finder/pkg/scheduler"
	"github.com/wcatools/competition-finder/pkg/server"
	"github.com/wcatools/competition-finder/pkg/venue"
	"github.com/wcatools/competition-finder/pkg/wca"
)

func main() {
	logger.Info("Starting WCA Competition Finder backend server...")

	cfg := config.Load()
	logger.SetLogLevelFromString(cfg.LogLevel)

	// The service stays up without its stores; the affected endpoints
	// degrade instead.
	var store cache.Store
	if boltStore, err := cache.NewBoltStore(cfg.CacheDBPath); err != nil {
		logger.Error("Failed to open competition cache, running without it: %v", err)
	} else {
		store = boltStore
		defer boltStore.Close()
	}

	preferences, err := prefs.Open(cfg.PrefsDBPath)
	if err != nil {
		logger.Error("Failed to open preference store, running without it: %v", err)
		preferences = nil
	} else {
		defer preferences.Close()
	}

	var venues *venue.Cache
	if cfg.VenueLookupEnabled {
		venues = venue.NewCache("")
		logger.Info("Venue coordinate lookup enabled")
	}

	client := wca.NewClient(cfg.APIBaseURL, cfg.MirrorBaseURL, cfg.Generation, venues)
	agg := aggregator.New(client, store)

	metrics.Init()

	var sched *scheduler.Scheduler
	schedCfg := scheduler.FromEnv()
	if schedCfg.Enabled {
		sched, err = scheduler.New(schedCfg, agg, preferences)
		if err != nil {
			logger.Error("Failed to create scheduler: %v", err)
		} else {
			sched.Start()
			defer sched.Stop()
		}
	}

	srv := server.New(cfg, agg, store, country.NewClient(), geocode.NewClient(), preferences, sched)

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		logger.Info("Shutdown signal received")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed: %v", err)
	}
}
