package ism

import (
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/multisig"
)

// Validator guards the verifier record. The record is identified by the
// Identity token and must always be continued at the same address.
type Validator struct {
	Identity ledger.AssetClass
}

func NewValidator(identity ledger.AssetClass) *Validator {
	return &Validator{Identity: identity}
}

func (v *Validator) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("ism/multisig", v.Identity.IndexKey())
}

func (v *Validator) Address() ledger.Address {
	return ledger.ScriptAddr(v.Hash())
}

func (v *Validator) ValidateSpend(ctx *ledger.ScriptContext) error {
	own, ok := ctx.OwnInput()
	if !ok || !own.Output.Value.Has(v.Identity) {
		return ErrMissingIdentity
	}
	datum, err := DecodeDatum(own.Output.Datum)
	if err != nil {
		return err
	}
	r, err := DecodeRedeemer(ctx.Redeemer)
	if err != nil {
		return err
	}

	switch r.Action {
	case ActionVerify:
		msg, err := codec.DecodeMessage(r.Message)
		if err != nil {
			return err
		}
		md, err := codec.DecodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		if err := datum.Verify(msg, md); err != nil {
			return err
		}
		return ctx.Tx.Unchanged(own, v.Identity)

	case ActionSetValidators:
		if !ctx.Tx.SignedBy(datum.Owner) {
			return fmt.Errorf("set validators: %w", hyperlane.ErrUnauthorized)
		}
		set := multisig.ValidatorSet{Validators: r.Validators, Threshold: r.Threshold}
		if err := set.Validate(); err != nil {
			return err
		}
		out, err := ctx.Tx.Continuation(own, v.Identity)
		if err != nil {
			return err
		}
		want := datum.WithValidatorSet(hyperlane.Domain(r.Origin), set).Encode()
		if string(out.Datum) != string(want) {
			return fmt.Errorf("validator set update: %w", ledger.ErrContinuationMismatch)
		}
		return nil

	default:
		return fmt.Errorf("action %d: %w", r.Action, ErrUnknownAction)
	}
}
