package prefs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReadyIsClosedAfterOpen(t *testing.T) {
	store := newTestStore(t)
	select {
	case <-store.Ready():
	default:
		t.Fatal("store not ready after Open")
	}
}

func TestCountriesRoundTrip(t *testing.T) {
	store := newTestStore(t)

	codes, err := store.Countries()
	require.NoError(t, err)
	assert.Empty(t, codes)

	require.NoError(t, store.SetCountries([]string{"US", "FR"}))
	codes, err = store.Countries()
	require.NoError(t, err)
	assert.Equal(t, []string{"US", "FR"}, codes)

	require.NoError(t, store.SetCountries(nil))
	codes, err = store.Countries()
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestViewModeAndThemeRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetViewMode("sidebar"))
	mode, err := store.ViewMode()
	require.NoError(t, err)
	assert.Equal(t, "sidebar", mode)

	require.NoError(t, store.SetTheme("teal"))
	theme, err := store.Theme()
	require.NoError(t, err)
	assert.Equal(t, "teal", theme)

	require.NoError(t, store.SetTheme(""))
	theme, err = store.Theme()
	require.NoError(t, err)
	assert.Empty(t, theme)
}
