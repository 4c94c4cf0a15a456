package corpus

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// ErrNotCached is returned by [Cache.Get] for an item with no cached
// evidence.
var ErrNotCached = errors.New("corpus: item not cached")

// cachedEntry is the stored form of one item's evidence. Results are kept as
// a flat slice because the msgpack roundtrip through the id-keyed set would
// lose registration order.
type cachedEntry struct {
	Label   Label           `msgpack:"label"`
	Results []sensor.Result `msgpack:"results"`
}

// Cache persists per-item sensor evidence between calibration runs, keyed by
// item id. Sensor outputs for a fixed corpus are deterministic, so a cached
// entry stays valid until the sensor set itself changes; callers bump the
// namespace for that.
type Cache struct {
	db        *badger.DB
	namespace string
}

// OpenCache opens (creating if needed) a badger-backed evidence cache at
// dir. namespace partitions entries, typically a digest of the enabled
// sensor set.
func OpenCache(dir, namespace string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("corpus: open cache at %q: %w", dir, err)
	}
	return &Cache{db: db, namespace: namespace}, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) key(itemID string) []byte {
	return []byte(c.namespace + "/" + itemID)
}

// Put stores one item's evidence set.
func (c *Cache) Put(itemID string, label Label, rs *sensor.ResultSet) error {
	entry := cachedEntry{Label: label, Results: rs.Results()}
	raw, err := msgpack.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("corpus: encode item %q: %w", itemID, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(itemID), raw)
	})
	if err != nil {
		return fmt.Errorf("corpus: store item %q: %w", itemID, err)
	}
	return nil
}

// Get loads one item's cached evidence, or [ErrNotCached] if absent.
func (c *Cache) Get(itemID string) (Label, *sensor.ResultSet, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(itemID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil, fmt.Errorf("%w: %q", ErrNotCached, itemID)
	}
	if err != nil {
		return "", nil, fmt.Errorf("corpus: load item %q: %w", itemID, err)
	}

	var entry cachedEntry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return "", nil, fmt.Errorf("corpus: decode item %q: %w", itemID, err)
	}
	rs, err := sensor.NewResultSet(entry.Results...)
	if err != nil {
		return "", nil, fmt.Errorf("corpus: decode item %q: %w", itemID, err)
	}
	return entry.Label, rs, nil
}
