package accountsbolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"p2p-directory/internal/app/accounts"
)

const (
	bMeta     = "meta"
	bUsers    = "users"
	kVersion  = "schema_version"
	schemaVer = "1"

	defaultTO = 2 * time.Second
)

// Store is a BoltDB-backed implementation of accounts.Store. Records are keyed
// by an insertion sequence so Load replays them in append order.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bMeta))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bUsers)); err != nil {
			return err
		}
		switch v := meta.Get([]byte(kVersion)); {
		case v == nil:
			return meta.Put([]byte(kVersion), []byte(schemaVer))
		case string(v) != schemaVer:
			return fmt.Errorf("%w: schema version %q", accounts.ErrCorruptStore, v)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append commits r in its own transaction; bbolt fsyncs on commit.
func (s *Store) Append(r accounts.UserRecord) error {
	val, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket([]byte(bUsers))
		seq, err := users.NextSequence()
		if err != nil {
			return err
		}
		return users.Put(seqKey(seq), val)
	})
}

func (s *Store) Load(fn func(r accounts.UserRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bUsers)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r accounts.UserRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("%w: record %x: %v", accounts.ErrCorruptStore, k, err)
			}
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}
