package ledger

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInsufficientValue = errors.New("insufficient value")

// Value is a bundle of coin and native assets. Zero quantities are never
// stored.
type Value struct {
	Coin   uint64
	Assets map[AssetClass]uint64
}

func Coin(n uint64) Value {
	return Value{Coin: n}
}

func (v Value) Clone() Value {
	out := Value{Coin: v.Coin}
	if len(v.Assets) > 0 {
		out.Assets = make(map[AssetClass]uint64, len(v.Assets))
		for a, n := range v.Assets {
			out.Assets[a] = n
		}
	}
	return out
}

func (v Value) Quantity(a AssetClass) uint64 {
	return v.Assets[a]
}

func (v Value) Has(a AssetClass) bool {
	return v.Assets[a] > 0
}

// OnlyCoin reports whether v carries no native assets.
func (v Value) OnlyCoin() bool {
	return len(v.Assets) == 0
}

func (v Value) WithAsset(a AssetClass, n uint64) Value {
	out := v.Clone()
	if n == 0 {
		return out
	}
	if out.Assets == nil {
		out.Assets = make(map[AssetClass]uint64, 1)
	}
	out.Assets[a] += n
	return out
}

func (v Value) Add(o Value) Value {
	out := v.Clone()
	out.Coin += o.Coin
	for a, n := range o.Assets {
		out = out.WithAsset(a, n)
	}
	return out
}

// Sub returns v - o, failing if any quantity would go negative.
func (v Value) Sub(o Value) (Value, error) {
	if o.Coin > v.Coin {
		return Value{}, fmt.Errorf("coin %d < %d: %w", v.Coin, o.Coin, ErrInsufficientValue)
	}
	out := v.Clone()
	out.Coin -= o.Coin
	for a, n := range o.Assets {
		have := out.Assets[a]
		if n > have {
			return Value{}, fmt.Errorf("asset %s %d < %d: %w", a, have, n, ErrInsufficientValue)
		}
		if have == n {
			delete(out.Assets, a)
		} else {
			out.Assets[a] = have - n
		}
	}
	if len(out.Assets) == 0 {
		out.Assets = nil
	}
	return out, nil
}

func (v Value) Equal(o Value) bool {
	if v.Coin != o.Coin || len(v.Assets) != len(o.Assets) {
		return false
	}
	for a, n := range v.Assets {
		if o.Assets[a] != n {
			return false
		}
	}
	return true
}

// SortedAssets returns the asset classes of v in index-key order.
func (v Value) SortedAssets() []AssetClass {
	out := make([]AssetClass, 0, len(v.Assets))
	for a := range v.Assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].IndexKey()) < string(out[j].IndexKey())
	})
	return out
}
