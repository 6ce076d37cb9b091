package ledger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/compose-network/hyperlane-eutxo"
)

var (
	bucketRecords      = []byte("records_by_ref")
	bucketSpent        = []byte("spent_by_ref")
	bucketAssetIndex   = []byte("ref_by_asset")
	bucketAddressIndex = []byte("ref_by_address")
)

// BoltStore persists the record set in a single bbolt file. Secondary
// indexes map key||ref to nothing and are scanned by prefix.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketSpent, bucketAssetIndex, bucketAddressIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(ref OutRef) (Output, bool, error) {
	var (
		out Output
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(ref.Bytes())
		if v == nil {
			return nil
		}
		o, err := DecodeOutput(v)
		if err != nil {
			return err
		}
		out, ok = o, true
		return nil
	})
	return out, ok, err
}

func (s *BoltStore) Spent(ref OutRef) (bool, error) {
	var spent bool
	err := s.db.View(func(tx *bolt.Tx) error {
		spent = tx.Bucket(bucketSpent).Get(ref.Bytes()) != nil
		return nil
	})
	return spent, err
}

func (s *BoltStore) FindByAsset(asset AssetClass) ([]Record, error) {
	return s.scan(bucketAssetIndex, asset.IndexKey())
}

func (s *BoltStore) FindByAddress(addr Address) ([]Record, error) {
	return s.scan(bucketAddressIndex, addr.IndexKey())
}

func (s *BoltStore) scan(bucket, prefix []byte) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		c := tx.Bucket(bucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			// Index keys are fixed-width after the prefix.
			if len(k) != len(prefix)+36 {
				continue
			}
			ref, err := OutRefFromBytes(k[len(prefix):])
			if err != nil {
				return err
			}
			v := records.Get(ref.Bytes())
			if v == nil {
				return fmt.Errorf("index points at missing record %s", ref)
			}
			o, err := DecodeOutput(v)
			if err != nil {
				return err
			}
			out = append(out, Record{Ref: ref, Output: o})
		}
		return nil
	})
	return out, err
}

func indexKey(prefix []byte, ref OutRef) []byte {
	return append(append([]byte(nil), prefix...), ref.Bytes()...)
}

func (s *BoltStore) Apply(consumed []OutRef, produced []Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		spent := tx.Bucket(bucketSpent)
		assets := tx.Bucket(bucketAssetIndex)
		addrs := tx.Bucket(bucketAddressIndex)

		for _, ref := range consumed {
			key := ref.Bytes()
			v := records.Get(key)
			if v == nil {
				if spent.Get(key) != nil {
					return fmt.Errorf("%s: %w", ref, hyperlane.ErrRecordAlreadyConsumed)
				}
				return fmt.Errorf("%s: %w", ref, hyperlane.ErrRecordNotFound)
			}
			o, err := DecodeOutput(v)
			if err != nil {
				return err
			}
			for _, ak := range assetKeys(o.Value) {
				if err := assets.Delete(indexKey(ak, ref)); err != nil {
					return err
				}
			}
			if err := addrs.Delete(indexKey(o.Address.IndexKey(), ref)); err != nil {
				return err
			}
			if err := records.Delete(key); err != nil {
				return err
			}
			if err := spent.Put(key, []byte{1}); err != nil {
				return err
			}
		}

		for _, r := range produced {
			v, err := EncodeOutput(r.Output)
			if err != nil {
				return err
			}
			if err := records.Put(r.Ref.Bytes(), v); err != nil {
				return err
			}
			for _, ak := range assetKeys(r.Output.Value) {
				if err := assets.Put(indexKey(ak, r.Ref), []byte{}); err != nil {
					return err
				}
			}
			if err := addrs.Put(indexKey(r.Output.Address.IndexKey(), r.Ref), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}
