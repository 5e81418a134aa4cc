package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wcatools/competition-finder/pkg/wca"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WCF_PORT", "")
	t.Setenv("WCF_API_GENERATION", "")
	t.Setenv("WCF_VENUE_LOOKUP_ENABLED", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "data/cache.db", cfg.CacheDBPath)
	assert.Equal(t, wca.GenerationLive, cfg.Generation)
	assert.True(t, cfg.VenueLookupEnabled)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("WCF_PORT", "9090")
	t.Setenv("WCF_API_GENERATION", wca.GenerationMirror)
	t.Setenv("WCF_VENUE_LOOKUP_ENABLED", "false")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, wca.GenerationMirror, cfg.Generation)
	assert.False(t, cfg.VenueLookupEnabled)
}
