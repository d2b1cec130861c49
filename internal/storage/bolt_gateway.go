package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
)

const (
	eventIDBucket   = "event_ids"
	eventMetaBucket = "event_meta"
	companyBucket   = "companies"
	idValueBytes    = 8
)

// boltGateway implements Gateway backed by BoltDB. It serves standalone
// deployments that have no CRM database to write into.
type boltGateway struct {
	db   *bolt.DB
	opts Options
}

var _ Gateway = (*boltGateway)(nil)

// openBolt initializes a BoltDB-backed Gateway.
func openBolt(path string, opts Options) (Gateway, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{eventIDBucket, eventMetaBucket, companyBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltGateway{db: db, opts: opts}, nil
}

// Close closes the BoltDB store.
func (b *boltGateway) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltGateway) CountCompanies(_ context.Context, eventURL string) (int, error) {
	count := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		id, ok := lookupEventID(tx, eventURL)
		if !ok {
			return nil
		}
		return forEachCompanyKey(tx, id, func([]byte) error {
			count++
			return nil
		})
	})
	return count, err
}

func (b *boltGateway) EventExists(_ context.Context, canonicalURL string) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		_, exists = lookupEventID(tx, canonicalURL)
		return nil
	})
	return exists, err
}

func (b *boltGateway) ExistingCompanyNames(_ context.Context, eventURL string) (map[string]bool, error) {
	names := make(map[string]bool)
	err := b.db.View(func(tx *bolt.Tx) error {
		id, ok := lookupEventID(tx, eventURL)
		if !ok {
			return nil
		}
		prefixLen := idValueBytes + 1
		return forEachCompanyKey(tx, id, func(k []byte) error {
			names[string(k[prefixLen:])] = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (b *boltGateway) UpsertEvent(_ context.Context, ev domain.Event) (int64, error) {
	var id uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket([]byte(eventIDBucket))
		meta := tx.Bucket([]byte(eventMetaBucket))
		if ids == nil || meta == nil {
			return fmt.Errorf("event buckets missing")
		}

		key := []byte(ev.CanonicalURL)
		if value := ids.Get(key); value != nil {
			if len(value) != idValueBytes {
				return fmt.Errorf("corrupt event id for %s", ev.CanonicalURL)
			}
			id = binary.BigEndian.Uint64(value)
		} else {
			seq, err := ids.NextSequence()
			if err != nil {
				return err
			}
			id = seq
			buf := make([]byte, idValueBytes)
			binary.BigEndian.PutUint64(buf, id)
			if err := ids.Put(key, buf); err != nil {
				return err
			}
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		buf := make([]byte, idValueBytes)
		binary.BigEndian.PutUint64(buf, id)
		return meta.Put(buf, payload)
	})
	if err != nil {
		return 0, err
	}
	return int64(id), nil
}

func (b *boltGateway) InsertCompanies(_ context.Context, eventID int64, companies []domain.Company) error {
	if len(companies) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(companyBucket))
		if bucket == nil {
			return fmt.Errorf("company bucket missing")
		}

		for _, c := range companies {
			key := companyKey(uint64(eventID), domain.NormalizeName(c.Name))
			if bucket.Get(key) != nil {
				continue
			}
			payload, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("marshal company %q: %w", c.Name, err)
			}
			if err := bucket.Put(key, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// companyKey is the event id followed by the normalized company name.
func companyKey(eventID uint64, normalizedName string) []byte {
	buf := make([]byte, idValueBytes, idValueBytes+1+len(normalizedName))
	binary.BigEndian.PutUint64(buf, eventID)
	buf = append(buf, '|')
	return append(buf, normalizedName...)
}

func lookupEventID(tx *bolt.Tx, eventURL string) (uint64, bool) {
	ids := tx.Bucket([]byte(eventIDBucket))
	if ids == nil {
		return 0, false
	}
	value := ids.Get([]byte(eventURL))
	if len(value) != idValueBytes {
		return 0, false
	}
	return binary.BigEndian.Uint64(value), true
}

func forEachCompanyKey(tx *bolt.Tx, eventID uint64, fn func(k []byte) error) error {
	bucket := tx.Bucket([]byte(companyBucket))
	if bucket == nil {
		return fmt.Errorf("company bucket missing")
	}

	prefix := companyKey(eventID, "")
	cursor := bucket.Cursor()
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}
