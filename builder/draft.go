package builder

import (
	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

// Draft is a transaction under construction. It carries everything except
// fee inputs, change, collateral and witnesses, which the wallet adds.
type Draft struct {
	tx      ledger.Tx
	spent   map[ledger.OutRef]struct{}
	inValue ledger.Value
	scripts bool
}

func NewDraft() *Draft {
	return &Draft{spent: make(map[ledger.OutRef]struct{})}
}

// Spend consumes rec. The redeemer is ignored for key-guarded records.
func (d *Draft) Spend(rec ledger.Record, redeemer []byte) *Draft {
	if _, dup := d.spent[rec.Ref]; dup {
		return d
	}
	d.spent[rec.Ref] = struct{}{}
	d.tx.Inputs = append(d.tx.Inputs, ledger.Input{Ref: rec.Ref, Redeemer: redeemer})
	d.inValue = d.inValue.Add(rec.Output.Value)
	if rec.Output.Address.IsScript() {
		d.scripts = true
	}
	return d
}

// Reference reads rec without consuming it.
func (d *Draft) Reference(rec ledger.Record) *Draft {
	for _, ref := range d.tx.ReferenceInputs {
		if ref == rec.Ref {
			return d
		}
	}
	d.tx.ReferenceInputs = append(d.tx.ReferenceInputs, rec.Ref)
	return d
}

func (d *Draft) Pay(o ledger.Output) *Draft {
	d.tx.Outputs = append(d.tx.Outputs, o.Clone())
	return d
}

// Mint adds amount of asset, negative to burn. A non-nil redeemer becomes
// the redeemer of the asset's policy.
func (d *Draft) Mint(asset ledger.AssetClass, amount int64, redeemer []byte) *Draft {
	d.tx.Mint = append(d.tx.Mint, ledger.MintEntry{Asset: asset, Amount: amount})
	d.scripts = true
	if redeemer == nil {
		return d
	}
	for i, r := range d.tx.MintRedeemers {
		if r.Policy == asset.Policy {
			d.tx.MintRedeemers[i].Redeemer = redeemer
			return d
		}
	}
	d.tx.MintRedeemers = append(d.tx.MintRedeemers, ledger.MintRedeemer{Policy: asset.Policy, Redeemer: redeemer})
	return d
}

func (d *Draft) RequireSigner(key hyperlane.Hash28) *Draft {
	for _, k := range d.tx.RequiredSigners {
		if k == key {
			return d
		}
	}
	d.tx.RequiredSigners = append(d.tx.RequiredSigners, key)
	return d
}

func (d *Draft) Spends(ref ledger.OutRef) bool {
	_, ok := d.spent[ref]
	return ok
}

// RunsScripts reports whether the transaction needs collateral.
func (d *Draft) RunsScripts() bool {
	return d.scripts
}

// supply is what the draft brings in: spent value plus minted assets.
func (d *Draft) supply() ledger.Value {
	v := d.inValue.Clone()
	for _, m := range d.tx.Mint {
		if m.Amount > 0 {
			v = v.WithAsset(m.Asset, uint64(m.Amount))
		}
	}
	return v
}

// demand is what the draft sends out: outputs plus burned assets.
func (d *Draft) demand() ledger.Value {
	v := ledger.Value{}
	for _, o := range d.tx.Outputs {
		v = v.Add(o.Value)
	}
	for _, m := range d.tx.Mint {
		if m.Amount < 0 {
			v = v.WithAsset(m.Asset, uint64(-m.Amount))
		}
	}
	return v
}

// clone returns a copy of the transaction built so far.
func (d *Draft) clone() ledger.Tx {
	tx := ledger.Tx{
		Inputs:          append([]ledger.Input(nil), d.tx.Inputs...),
		ReferenceInputs: append([]ledger.OutRef(nil), d.tx.ReferenceInputs...),
		Mint:            append([]ledger.MintEntry(nil), d.tx.Mint...),
		MintRedeemers:   append([]ledger.MintRedeemer(nil), d.tx.MintRedeemers...),
		RequiredSigners: append([]hyperlane.Hash28(nil), d.tx.RequiredSigners...),
	}
	for _, o := range d.tx.Outputs {
		tx.Outputs = append(tx.Outputs, o.Clone())
	}
	return tx
}
