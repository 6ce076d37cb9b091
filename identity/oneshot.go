// Package identity mints the unique tokens that give stateful records a
// durable handle independent of where they are stored.
package identity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

var (
	ErrSeedNotSpent = errors.New("seed record not spent")
	ErrUnknownName  = errors.New("name not declared by policy")
	ErrNotOne       = errors.New("identity tokens are minted exactly once")
)

// OneShotPolicy can mint its declared names once, in the transaction that
// consumes Seed. Since a record can only be consumed once, the names can
// never be reissued.
type OneShotPolicy struct {
	Seed  ledger.OutRef
	Names []string
}

func NewOneShotPolicy(seed ledger.OutRef, names ...string) *OneShotPolicy {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return &OneShotPolicy{Seed: seed, Names: sorted}
}

func (p *OneShotPolicy) Hash() hyperlane.Hash28 {
	params := [][]byte{p.Seed.Bytes()}
	for _, n := range p.Names {
		params = append(params, []byte(n))
	}
	return ledger.ScriptHashOf("identity/one-shot", params...)
}

// Asset returns the token with the given name under this policy.
func (p *OneShotPolicy) Asset(name string) ledger.AssetClass {
	return ledger.AssetClass{Policy: p.Hash(), Name: name}
}

func (p *OneShotPolicy) ValidateMint(ctx *ledger.ScriptContext) error {
	if !ctx.Tx.SpendsRef(p.Seed) {
		return fmt.Errorf("%s: %w", p.Seed, ErrSeedNotSpent)
	}
	declared := make(map[string]struct{}, len(p.Names))
	for _, n := range p.Names {
		declared[n] = struct{}{}
	}
	for _, m := range ctx.OwnMint() {
		if _, ok := declared[m.Asset.Name]; !ok {
			return fmt.Errorf("%x: %w", m.Asset.Name, ErrUnknownName)
		}
		if m.Amount != 1 || ctx.Tx.Minted(m.Asset) != 1 {
			return fmt.Errorf("%x amount %d: %w", m.Asset.Name, ctx.Tx.Minted(m.Asset), ErrNotOne)
		}
	}
	return nil
}
