package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/models"
)

const (
	// BoltDB bucket holding the per-country competition entries
	competitionsBucket = "competitions"

	// Key namespace of this system inside the bucket. ClearAll only ever
	// touches keys under this prefix.
	keyPrefix = "wca_comps_"

	// TTL is how long a cached country entry stays fresh.
	TTL = 30 * time.Minute
)

// Store provides the per-country competition cache operations. A nil Store
// is a valid collaborator for callers that treat every read as a miss.
type Store interface {
	Get(countryCode string) ([]models.Competition, bool, error)
	Put(countryCode string, comps []models.Competition) error
	ClearAll() error
	Stats() (map[string]int, error)
	Close() error
}

// BoltStore implements Store using BoltDB for persistence
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed competition cache
func NewBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(competitionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	logger.Info("BoltDB competition cache initialized at: %s", dbPath)
	return &BoltStore{db: db, now: time.Now}, nil
}

func entryKey(countryCode string) []byte {
	return []byte(keyPrefix + countryCode)
}

// Get returns the cached competitions for a country code. A hit requires an
// entry for the exact code that is younger than TTL; anything else is a miss.
func (s *BoltStore) Get(countryCode string) ([]models.Competition, bool, error) {
	var entry models.CacheEntry
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(competitionsBucket))
		if bucket == nil {
			return nil
		}
		data := bucket.Get(entryKey(countryCode))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache for %s: %w", countryCode, err)
	}
	if !found {
		return nil, false, nil
	}

	age := s.now().Sub(time.UnixMilli(entry.Timestamp))
	if age >= TTL {
		logger.Debug("Cache entry for %s expired (age %s)", countryCode, age)
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Put overwrites the entry for a country code with a fresh timestamp.
func (s *BoltStore) Put(countryCode string, comps []models.Competition) error {
	entry := models.CacheEntry{
		CountryCode: countryCode,
		Timestamp:   s.now().UnixMilli(),
		Data:        comps,
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(competitionsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s does not exist", competitionsBucket)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry: %w", err)
		}
		return bucket.Put(entryKey(countryCode), data)
	})
}

// ClearAll removes every entry under the wca_comps_ prefix. Keys outside the
// prefix (there should be none in this bucket, but the namespace rule is the
// contract) are left alone.
func (s *BoltStore) ClearAll() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(competitionsBucket))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		prefix := []byte(keyPrefix)
		var stale [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		logger.Info("Cleared %d cached country entries", len(stale))
		return nil
	})
}

// Stats returns entry counts split into fresh and expired.
func (s *BoltStore) Stats() (map[string]int, error) {
	stats := map[string]int{
		"total_entries": 0,
		"fresh":         0,
		"expired":       0,
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(competitionsBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if !bytes.HasPrefix(k, []byte(keyPrefix)) {
				return nil
			}
			var entry models.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				logger.Error("Failed to unmarshal cache entry for key %s: %v", string(k), err)
				return nil
			}
			stats["total_entries"]++
			if s.now().Sub(time.UnixMilli(entry.Timestamp)) < TTL {
				stats["fresh"]++
			} else {
				stats["expired"]++
			}
			return nil
		})
	})

	return stats, err
}

// Close closes the underlying BoltDB database
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
