package ledger

// Store holds the unspent record set and the set of spent references.
// Apply must be atomic: either every consumed record is removed and every
// produced record added, or nothing changes.
type Store interface {
	Get(ref OutRef) (Output, bool, error)
	Spent(ref OutRef) (bool, error)
	FindByAsset(asset AssetClass) ([]Record, error)
	FindByAddress(addr Address) ([]Record, error)
	Apply(consumed []OutRef, produced []Record) error
	Close() error
}

func assetKeys(v Value) [][]byte {
	assets := v.SortedAssets()
	out := make([][]byte, len(assets))
	for i, a := range assets {
		out[i] = a.IndexKey()
	}
	return out
}
