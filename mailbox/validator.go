package mailbox

import (
	"bytes"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

// Validator guards the mailbox record identified by Identity. Inbound
// processing additionally requires the replay marker under MarkerPolicy.
type Validator struct {
	Identity     ledger.AssetClass
	MarkerPolicy hyperlane.Hash28
}

func NewValidator(identity ledger.AssetClass, markerPolicy hyperlane.Hash28) *Validator {
	return &Validator{Identity: identity, MarkerPolicy: markerPolicy}
}

func (v *Validator) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("mailbox", v.Identity.IndexKey(), v.MarkerPolicy[:])
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
	case ActionDispatch:
		return v.dispatch(ctx.Tx, own, datum, r)

	case ActionProcess:
		if _, err := CheckProcess(ctx.Tx, datum, v.MarkerPolicy, r.Process); err != nil {
			return err
		}
		return ctx.Tx.Unchanged(own, v.Identity)

	case ActionSetDefaultIsm:
		if !ctx.Tx.SignedBy(datum.Owner) {
			return fmt.Errorf("set default ism: %w", hyperlane.ErrUnauthorized)
		}
		next := datum
		next.DefaultIsm = r.Ism
		return v.continueWith(ctx.Tx, own, next)

	case ActionTransferOwnership:
		if !ctx.Tx.SignedBy(datum.Owner) {
			return fmt.Errorf("transfer ownership: %w", hyperlane.ErrUnauthorized)
		}
		next := datum
		next.Owner = r.Owner
		return v.continueWith(ctx.Tx, own, next)

	default:
		return fmt.Errorf("%s: %w", r.Action, ErrUnknownAction)
	}
}

func (v *Validator) dispatch(tx *ledger.TxInfo, own ledger.ResolvedInput, datum Datum, r Redeemer) error {
	if len(r.Body) > MaxBodyLen {
		return fmt.Errorf("body of %d bytes exceeds %d: %w", len(r.Body), MaxBodyLen, hyperlane.ErrMalformedMessage)
	}
	if err := authorizeSender(tx, r.Sender); err != nil {
		return err
	}
	msg := datum.Dispatched(r.Sender, hyperlane.Domain(r.Destination), r.Recipient, r.Body)
	next, err := datum.AfterDispatch(msg)
	if err != nil {
		return err
	}
	return v.continueWith(tx, own, next)
}

// authorizeSender requires whoever the message claims as sender to take part
// in the transaction.
func authorizeSender(tx *ledger.TxInfo, sender hyperlane.Bytes32) error {
	addr, ok := ledger.AddressFromBytes32(sender)
	if !ok {
		return fmt.Errorf("sender %s has no credential prefix: %w", sender, hyperlane.ErrUnauthorized)
	}
	if addr.IsScript() {
		if !tx.ExercisesScript(addr.Hash) {
			return fmt.Errorf("sender script %s not exercised: %w", addr.Hash, hyperlane.ErrUnauthorized)
		}
		return nil
	}
	if !tx.SignedBy(addr.Hash) {
		return fmt.Errorf("sender key %s did not sign: %w", addr.Hash, hyperlane.ErrUnauthorized)
	}
	return nil
}

func (v *Validator) continueWith(tx *ledger.TxInfo, own ledger.ResolvedInput, next Datum) error {
	out, err := tx.Continuation(own, v.Identity)
	if err != nil {
		return err
	}
	if !bytes.Equal(out.Datum, next.Encode()) {
		return fmt.Errorf("continuing state: %w", ErrBadTransition)
	}
	return nil
}
