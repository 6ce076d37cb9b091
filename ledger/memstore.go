package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/compose-network/hyperlane-eutxo"
)

const (
	tableRecords = "records"
	tableSpent   = "spent"
)

// Index keys are hex so that prefix seeks never match across binary keys.
type recordRow struct {
	Key        string
	AddressKey string
	AssetKeys  []string
	Record     Record
}

type spentRow struct {
	Key string
}

func memSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableRecords: {
				Name: tableRecords,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"address": {
						Name:    "address",
						Indexer: &memdb.StringFieldIndex{Field: "AddressKey"},
					},
					"asset": {
						Name:         "asset",
						AllowMissing: true,
						Indexer:      &memdb.StringSliceFieldIndex{Field: "AssetKeys"},
					},
				},
			},
			tableSpent: {
				Name: tableSpent,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
}

// MemStore is an in-memory Store. Reads run against an immutable snapshot
// and never block writers.
type MemStore struct {
	db *memdb.MemDB
}

func NewMemStore() (*MemStore, error) {
	db, err := memdb.NewMemDB(memSchema())
	if err != nil {
		return nil, fmt.Errorf("memdb: %w", err)
	}
	return &MemStore{db: db}, nil
}

func refKey(ref OutRef) string {
	return hex.EncodeToString(ref.Bytes())
}

func newRecordRow(r Record) *recordRow {
	keys := assetKeys(r.Output.Value)
	row := &recordRow{
		Key:        refKey(r.Ref),
		AddressKey: hex.EncodeToString(r.Output.Address.IndexKey()),
		Record:     Record{Ref: r.Ref, Output: r.Output.Clone()},
	}
	for _, k := range keys {
		row.AssetKeys = append(row.AssetKeys, hex.EncodeToString(k))
	}
	return row
}

func (s *MemStore) Get(ref OutRef) (Output, bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableRecords, "id", refKey(ref))
	if err != nil {
		return Output{}, false, err
	}
	if raw == nil {
		return Output{}, false, nil
	}
	return raw.(*recordRow).Record.Output.Clone(), true, nil
}

func (s *MemStore) Spent(ref OutRef) (bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableSpent, "id", refKey(ref))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (s *MemStore) FindByAsset(asset AssetClass) ([]Record, error) {
	return s.find("asset", hex.EncodeToString(asset.IndexKey()))
}

func (s *MemStore) FindByAddress(addr Address) ([]Record, error) {
	return s.find("address", hex.EncodeToString(addr.IndexKey()))
}

func (s *MemStore) find(index, key string) ([]Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableRecords, index, key)
	if err != nil {
		return nil, err
	}
	var out []Record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		row := raw.(*recordRow)
		out = append(out, Record{Ref: row.Record.Ref, Output: row.Record.Output.Clone()})
	}
	return out, nil
}

func (s *MemStore) Apply(consumed []OutRef, produced []Record) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, ref := range consumed {
		raw, err := txn.First(tableRecords, "id", refKey(ref))
		if err != nil {
			return err
		}
		if raw == nil {
			return s.missing(txn, ref)
		}
		if err := txn.Delete(tableRecords, raw); err != nil {
			return err
		}
		if err := txn.Insert(tableSpent, &spentRow{Key: refKey(ref)}); err != nil {
			return err
		}
	}
	for _, r := range produced {
		if err := txn.Insert(tableRecords, newRecordRow(r)); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *MemStore) missing(txn *memdb.Txn, ref OutRef) error {
	raw, err := txn.First(tableSpent, "id", refKey(ref))
	if err != nil {
		return err
	}
	if raw != nil {
		return fmt.Errorf("%s: %w", ref, hyperlane.ErrRecordAlreadyConsumed)
	}
	return fmt.Errorf("%s: %w", ref, hyperlane.ErrRecordNotFound)
}

func (s *MemStore) Close() error { return nil }
