package recipient

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

var ErrBadProof = errors.New("invalid message proof")

// DeferredState tracks the stored messages consumed so far.
type DeferredState struct {
	Owner         hyperlane.Hash28
	Processed     uint64
	LastMessageID hyperlane.Bytes32
}

func (s DeferredState) Encode() []byte {
	b, err := rlp.EncodeToBytes(s)
	if err != nil {
		panic(fmt.Sprintf("encode deferred state: %v", err))
	}
	return b
}

func DecodeDeferredState(b []byte) (DeferredState, error) {
	var s DeferredState
	if err := rlp.DecodeBytes(b, &s); err != nil {
		return DeferredState{}, fmt.Errorf("deferred state: %w", err)
	}
	return s, nil
}

func (s DeferredState) Consume(id hyperlane.Bytes32) DeferredState {
	s.Processed++
	s.LastMessageID = id
	return s
}

// Deferred stores inbound messages for a later, independent processing
// step. Its script hash is also the policy of the message-proof tokens that
// accompany stored messages: a proof is minted only alongside the replay
// marker of the same message, and burned only when the stored message is
// consumed.
type Deferred struct {
	Identity     ledger.AssetClass
	MarkerPolicy hyperlane.Hash28
}

func NewDeferred(identity ledger.AssetClass, markerPolicy hyperlane.Hash28) *Deferred {
	return &Deferred{Identity: identity, MarkerPolicy: markerPolicy}
}

func (d *Deferred) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("recipient/deferred", d.Identity.IndexKey(), d.MarkerPolicy[:])
}

func (d *Deferred) Address() ledger.Address {
	return ledger.ScriptAddr(d.Hash())
}

func (d *Deferred) Proof(id hyperlane.Bytes32) ledger.AssetClass {
	return mailbox.ProofAsset(d.Hash(), id)
}

func (d *Deferred) ValidateMint(ctx *ledger.ScriptContext) error {
	for _, m := range ctx.OwnMint() {
		if len(m.Asset.Name) != 32 {
			return fmt.Errorf("proof name of %d bytes: %w", len(m.Asset.Name), ErrBadProof)
		}
		id := hyperlane.BytesToBytes32([]byte(m.Asset.Name))
		switch ctx.Tx.Minted(m.Asset) {
		case 1:
			if err := requireMarker(ctx.Tx, d.MarkerPolicy, id); err != nil {
				return err
			}
			if err := d.checkStored(ctx.Tx, m.Asset, id); err != nil {
				return err
			}
		case -1:
			in, ok := ctx.Tx.InputWithAsset(m.Asset)
			if !ok || in.Output.Address != d.Address() {
				return fmt.Errorf("burn of %s without its stored message: %w", id, ErrBadProof)
			}
		default:
			return fmt.Errorf("proof %s minted %d: %w", id, ctx.Tx.Minted(m.Asset), ErrBadProof)
		}
	}
	return nil
}

func (d *Deferred) checkStored(tx *ledger.TxInfo, proof ledger.AssetClass, id hyperlane.Bytes32) error {
	outs := tx.OutputsWithAsset(proof)
	if len(outs) != 1 || outs[0].Address != d.Address() {
		return fmt.Errorf("proof %s must be stored once at the recipient: %w", id, ErrBadProof)
	}
	s, err := mailbox.DecodeStoredMessage(outs[0].Datum)
	if err != nil {
		return err
	}
	if s.MessageID != id {
		return fmt.Errorf("stored message %s under proof %s: %w", s.MessageID, id, ErrBadProof)
	}
	return nil
}

func (d *Deferred) ValidateSpend(ctx *ledger.ScriptContext) error {
	own, ok := ctx.OwnInput()
	if !ok {
		return ErrMissingIdentity
	}
	if own.Output.Value.Has(d.Identity) {
		return d.spendState(ctx, own)
	}
	return d.spendStored(ctx, own)
}

func (d *Deferred) spendState(ctx *ledger.ScriptContext, own ledger.ResolvedInput) error {
	state, err := DecodeDeferredState(own.Output.Datum)
	if err != nil {
		return err
	}
	r, err := mailbox.DecodeRecipientRedeemer(ctx.Redeemer)
	if err != nil {
		return err
	}
	switch r.Action {
	case mailbox.RecipientProcessStored:
		id := r.Handle.MessageID
		proof := d.Proof(id)
		in, ok := ctx.Tx.InputWithAsset(proof)
		if !ok || in.Output.Address != d.Address() || ctx.Tx.Minted(proof) != -1 {
			return fmt.Errorf("stored message %s not consumed: %w", id, ErrBadProof)
		}
		return continueWith(ctx.Tx, own, d.Identity, state.Consume(id).Encode())
	case mailbox.RecipientControl:
		if len(r.Payload) > 0 {
			if _, err := DecodeDeferredState(r.Payload); err != nil {
				return err
			}
		}
		return control(ctx.Tx, own, d.Identity, state.Owner, r.Payload)
	default:
		return fmt.Errorf("action %d: %w", r.Action, ErrUnknownAction)
	}
}

// spendStored lets a stored message go only together with the state record
// processing it.
func (d *Deferred) spendStored(ctx *ledger.ScriptContext, own ledger.ResolvedInput) error {
	s, err := mailbox.DecodeStoredMessage(own.Output.Datum)
	if err != nil {
		return err
	}
	proof := d.Proof(s.MessageID)
	if !own.Output.Value.Has(proof) || ctx.Tx.Minted(proof) != -1 {
		return fmt.Errorf("stored message %s: %w", s.MessageID, ErrBadProof)
	}
	state, ok := ctx.Tx.InputWithAsset(d.Identity)
	if !ok {
		return fmt.Errorf("stored message %s without state: %w", s.MessageID, ErrBadProof)
	}
	r, err := mailbox.DecodeRecipientRedeemer(state.Redeemer)
	if err != nil || r.Action != mailbox.RecipientProcessStored || r.Handle.MessageID != s.MessageID {
		return fmt.Errorf("state not processing %s: %w", s.MessageID, ErrBadProof)
	}
	return nil
}
