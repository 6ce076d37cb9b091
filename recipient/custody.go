package recipient

import (
	"errors"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

var (
	ErrRouterNotSpent = errors.New("token router not handling a message")
)

// routerHandling requires the router identified by identity to be spent
// with a Handle redeemer. The router itself checks amounts.
func routerHandling(tx *ledger.TxInfo, identity ledger.AssetClass) error {
	in, ok := tx.InputWithAsset(identity)
	if !ok {
		return ErrRouterNotSpent
	}
	r, err := mailbox.DecodeRecipientRedeemer(in.Redeemer)
	if err != nil || r.Action != mailbox.RecipientHandle {
		return ErrRouterNotSpent
	}
	return nil
}

// Vault holds the collateral a token router releases. Coin may leave only
// while the router handles a message; identity tokens stay at the vault.
type Vault struct {
	Router ledger.AssetClass
}

func NewVault(router ledger.AssetClass) *Vault {
	return &Vault{Router: router}
}

func (v *Vault) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("recipient/vault", v.Router.IndexKey())
}

func (v *Vault) Address() ledger.Address {
	return ledger.ScriptAddr(v.Hash())
}

func (v *Vault) ValidateSpend(ctx *ledger.ScriptContext) error {
	if err := routerHandling(ctx.Tx, v.Router); err != nil {
		return err
	}
	own, ok := ctx.OwnInput()
	if !ok {
		return ErrBadPayout
	}
	for _, a := range own.Output.Value.SortedAssets() {
		kept := false
		for _, o := range ctx.Tx.OutputsAt(v.Address()) {
			if o.Value.Quantity(a) >= own.Output.Value.Quantity(a) {
				kept = true
				break
			}
		}
		if !kept {
			return fmt.Errorf("asset %s left the vault: %w", a, ErrBadPayout)
		}
	}
	return nil
}

// SyntheticPolicy issues the synthetic asset of a token router. Supply only
// grows while the router handles a message.
type SyntheticPolicy struct {
	Router ledger.AssetClass
	Name   string
}

func NewSyntheticPolicy(router ledger.AssetClass, name string) *SyntheticPolicy {
	return &SyntheticPolicy{Router: router, Name: name}
}

func (p *SyntheticPolicy) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("recipient/synthetic", p.Router.IndexKey(), []byte(p.Name))
}

func (p *SyntheticPolicy) Asset() ledger.AssetClass {
	return ledger.AssetClass{Policy: p.Hash(), Name: p.Name}
}

func (p *SyntheticPolicy) ValidateMint(ctx *ledger.ScriptContext) error {
	for _, m := range ctx.OwnMint() {
		if m.Asset.Name != p.Name || m.Amount <= 0 {
			return fmt.Errorf("mint %s %d: %w", m.Asset, m.Amount, ErrBadPayout)
		}
	}
	return routerHandling(ctx.Tx, p.Router)
}
