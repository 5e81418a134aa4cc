package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/wcatools/competition-finder/pkg/logger"
)

const (
	preferencesBucket = "preferences"

	keyCountries = "preferredCountries"
	keyViewMode  = "preferredViewMode"
	keyTheme     = "preferredTheme"
)

// Store persists the small set of user preferences: selected countries,
// remembered view mode and theme. It carries no business logic. Ready()
// closes once the store is usable, so consumers can await it explicitly
// instead of polling.
type Store struct {
	db    *bbolt.DB
	ready chan struct{}
}

func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preferences directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences store at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(preferencesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create preferences bucket: %w", err)
	}

	logger.Info("Preference store initialized at: %s", dbPath)
	s := &Store{db: db, ready: make(chan struct{})}
	close(s.ready)
	return s, nil
}

// Ready is closed once the store can serve reads.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Countries returns the remembered country selection, empty when none is
// stored.
func (s *Store) Countries() ([]string, error) {
	data, err := s.get(keyCountries)
	if err != nil || data == nil {
		return nil, err
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, fmt.Errorf("failed to decode stored countries: %w", err)
	}
	return codes, nil
}

// SetCountries stores the selection; an empty slice removes it.
func (s *Store) SetCountries(codes []string) error {
	if len(codes) == 0 {
		return s.delete(keyCountries)
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	return s.put(keyCountries, data)
}

func (s *Store) ViewMode() (string, error) {
	return s.getString(keyViewMode)
}

func (s *Store) SetViewMode(mode string) error {
	return s.putString(keyViewMode, mode)
}

func (s *Store) Theme() (string, error) {
	return s.getString(keyTheme)
}

func (s *Store) SetTheme(theme string) error {
	return s.putString(keyTheme, theme)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		if bucket == nil {
			return nil
		}
		if data := bucket.Get([]byte(key)); data != nil {
			out = append([]byte(nil), data...)
		}
		return nil
	})
	return out, err
}

func (s *Store) put(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s does not exist", preferencesBucket)
		}
		return bucket.Put([]byte(key), value)
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (s *Store) getString(key string) (string, error) {
	data, err := s.get(key)
	return string(data), err
}

func (s *Store) putString(key, value string) error {
	if value == "" {
		return s.delete(key)
	}
	return s.put(key, []byte(value))
}
