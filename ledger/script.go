package ledger

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
)

type Purpose uint8

const (
	PurposeSpend Purpose = iota
	PurposeMint
)

func (p Purpose) String() string {
	if p == PurposeMint {
		return "mint"
	}
	return "spend"
}

type Script interface {
	Hash() hyperlane.Hash28
}

// SpendingValidator guards records locked at its script address.
type SpendingValidator interface {
	Script
	ValidateSpend(ctx *ScriptContext) error
}

// MintingPolicy controls supply changes of assets under its hash.
type MintingPolicy interface {
	Script
	ValidateMint(ctx *ScriptContext) error
}

// UniqueMinter is a policy whose asset names may exist at most once. The
// ledger refuses to mint a name that is already held by a live record and
// reports the policy's own error.
type UniqueMinter interface {
	MintingPolicy
	DuplicateMint(asset AssetClass) error
}

// ScriptError is the rejection of one script. A rejected transaction carries
// one ScriptError per failing script, joined.
type ScriptError struct {
	Purpose Purpose
	Script  hyperlane.Hash28
	Ref     OutRef
	Err     error
}

func (e *ScriptError) Error() string {
	if e.Purpose == PurposeSpend {
		return fmt.Sprintf("spend %s by %s: %v", e.Ref, e.Script, e.Err)
	}
	return fmt.Sprintf("mint by %s: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// ResolvedInput is a consumed record together with its redeemer.
type ResolvedInput struct {
	Record
	Redeemer []byte
}

// TxInfo is the immutable view of a transaction every script evaluates.
type TxInfo struct {
	ID              TxID
	Inputs          []ResolvedInput
	ReferenceInputs []Record
	Outputs         []Output
	Mint            []MintEntry
	MintRedeemers   []MintRedeemer
	Signatories     []hyperlane.Hash28
	Fee             uint64
}

type ScriptContext struct {
	Tx      *TxInfo
	Purpose Purpose
	// OwnRef is set when spending.
	OwnRef OutRef
	// OwnPolicy is set when minting.
	OwnPolicy hyperlane.Hash28
	Redeemer  []byte
}

// OwnInput returns the record being spent.
func (c *ScriptContext) OwnInput() (ResolvedInput, bool) {
	for _, in := range c.Tx.Inputs {
		if in.Ref == c.OwnRef {
			return in, true
		}
	}
	return ResolvedInput{}, false
}

// OwnMint returns the mint entries under the policy being run.
func (c *ScriptContext) OwnMint() []MintEntry {
	return c.Tx.MintedBy(c.OwnPolicy)
}

func (t *TxInfo) InputWithAsset(a AssetClass) (ResolvedInput, bool) {
	for _, in := range t.Inputs {
		if in.Output.Value.Has(a) {
			return in, true
		}
	}
	return ResolvedInput{}, false
}

func (t *TxInfo) ReferenceWithAsset(a AssetClass) (Record, bool) {
	for _, r := range t.ReferenceInputs {
		if r.Output.Value.Has(a) {
			return r, true
		}
	}
	return Record{}, false
}

func (t *TxInfo) OutputsWithAsset(a AssetClass) []Output {
	var out []Output
	for _, o := range t.Outputs {
		if o.Value.Has(a) {
			out = append(out, o)
		}
	}
	return out
}

func (t *TxInfo) OutputsAt(addr Address) []Output {
	var out []Output
	for _, o := range t.Outputs {
		if o.Address == addr {
			out = append(out, o)
		}
	}
	return out
}

func (t *TxInfo) InputsAt(addr Address) []ResolvedInput {
	var out []ResolvedInput
	for _, in := range t.Inputs {
		if in.Output.Address == addr {
			out = append(out, in)
		}
	}
	return out
}

// ExercisesScript reports whether a record guarded by script is consumed.
func (t *TxInfo) ExercisesScript(script hyperlane.Hash28) bool {
	return len(t.InputsAt(ScriptAddr(script))) > 0
}

func (t *TxInfo) MintedBy(policy hyperlane.Hash28) []MintEntry {
	var out []MintEntry
	for _, m := range t.Mint {
		if m.Asset.Policy == policy {
			out = append(out, m)
		}
	}
	return out
}

// Minted returns the net supply change of a.
func (t *TxInfo) Minted(a AssetClass) int64 {
	var n int64
	for _, m := range t.Mint {
		if m.Asset == a {
			n += m.Amount
		}
	}
	return n
}

func (t *TxInfo) MintRedeemer(policy hyperlane.Hash28) ([]byte, bool) {
	for _, r := range t.MintRedeemers {
		if r.Policy == policy {
			return r.Redeemer, true
		}
	}
	return nil, false
}

func (t *TxInfo) SignedBy(key hyperlane.Hash28) bool {
	for _, s := range t.Signatories {
		if s == key {
			return true
		}
	}
	return false
}

func (t *TxInfo) SpendsRef(ref OutRef) bool {
	for _, in := range t.Inputs {
		if in.Ref == ref {
			return true
		}
	}
	return false
}

var ErrContinuationMismatch = errors.New("continuing output mismatch")

// Continuation returns the single output that carries identity a onward to
// the same address as the consumed record, with the same value.
func (t *TxInfo) Continuation(in ResolvedInput, a AssetClass) (Output, error) {
	outs := t.OutputsWithAsset(a)
	if len(outs) != 1 {
		return Output{}, fmt.Errorf("%d outputs carry %s: %w", len(outs), a, ErrContinuationMismatch)
	}
	out := outs[0]
	if out.Address != in.Output.Address {
		return Output{}, fmt.Errorf("identity moved to %s: %w", out.Address, ErrContinuationMismatch)
	}
	if !out.Value.Equal(in.Output.Value) {
		return Output{}, fmt.Errorf("value changed: %w", ErrContinuationMismatch)
	}
	return out, nil
}

// Unchanged requires the continuation of in to carry an identical datum.
func (t *TxInfo) Unchanged(in ResolvedInput, a AssetClass) error {
	out, err := t.Continuation(in, a)
	if err != nil {
		return err
	}
	if !bytes.Equal(out.Datum, in.Output.Datum) {
		return fmt.Errorf("datum changed: %w", ErrContinuationMismatch)
	}
	return nil
}
