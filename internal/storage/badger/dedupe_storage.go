package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
)

// dedupePrefix namespaces raw hash keys away from the badgerhold record
// keyspace that shares the database.
const dedupePrefix = "dedupe:"

// DedupeStorage implements the DedupeStorage interface on raw Badger
// entries. Expiry rides on Badger's native TTL: a recorded hash
// disappears on its own once the window passes, so a later sighting of
// the same content registers as new without any sweep.
type DedupeStorage struct {
	db     *badgerdb.DB
	logger arbor.ILogger
}

// NewDedupeStorage creates a new DedupeStorage instance
func NewDedupeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DedupeStorage {
	return &DedupeStorage{
		db:     db.Store().Badger(),
		logger: logger,
	}
}

// Seen reports whether the hash was recorded within the window, and
// records it when it was not. A window of zero or less records the hash
// without a TTL, so it never expires.
func (s *DedupeStorage) Seen(ctx context.Context, hash string, window time.Duration) (bool, error) {
	if hash == "" {
		return false, fmt.Errorf("hash is required")
	}

	key := []byte(dedupePrefix + hash)
	seen := false

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			// Badger hides entries past their TTL, so a hit means the
			// window is still open.
			seen = true
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}

		entry := badgerdb.NewEntry(key, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
		if window > 0 {
			entry = entry.WithTTL(window)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return false, fmt.Errorf("failed to record hash: %w", err)
	}
	return seen, nil
}
