package recipient

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

// GenericState counts the messages a generic recipient has received.
type GenericState struct {
	Owner            hyperlane.Hash28
	MessagesReceived uint64
	LastMessageID    hyperlane.Bytes32
}

func (s GenericState) Encode() []byte {
	b, err := rlp.EncodeToBytes(s)
	if err != nil {
		panic(fmt.Sprintf("encode generic state: %v", err))
	}
	return b
}

func DecodeGenericState(b []byte) (GenericState, error) {
	var s GenericState
	if err := rlp.DecodeBytes(b, &s); err != nil {
		return GenericState{}, fmt.Errorf("generic state: %w", err)
	}
	return s, nil
}

func (s GenericState) Receive(h mailbox.Handle) GenericState {
	s.MessagesReceived++
	s.LastMessageID = h.MessageID
	return s
}

// Generic is a state-in/state-out recipient with no side effects.
type Generic struct {
	Identity     ledger.AssetClass
	MarkerPolicy hyperlane.Hash28
}

func NewGeneric(identity ledger.AssetClass, markerPolicy hyperlane.Hash28) *Generic {
	return &Generic{Identity: identity, MarkerPolicy: markerPolicy}
}

func (g *Generic) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("recipient/generic", g.Identity.IndexKey(), g.MarkerPolicy[:])
}

func (g *Generic) Address() ledger.Address {
	return ledger.ScriptAddr(g.Hash())
}

func (g *Generic) ValidateSpend(ctx *ledger.ScriptContext) error {
	own, ok := ctx.OwnInput()
	if !ok || !own.Output.Value.Has(g.Identity) {
		return ErrMissingIdentity
	}
	state, err := DecodeGenericState(own.Output.Datum)
	if err != nil {
		return err
	}
	r, err := mailbox.DecodeRecipientRedeemer(ctx.Redeemer)
	if err != nil {
		return err
	}

	switch r.Action {
	case mailbox.RecipientHandle:
		if err := requireMarker(ctx.Tx, g.MarkerPolicy, r.Handle.MessageID); err != nil {
			return err
		}
		return continueWith(ctx.Tx, own, g.Identity, state.Receive(r.Handle).Encode())
	case mailbox.RecipientControl:
		if len(r.Payload) > 0 {
			if _, err := DecodeGenericState(r.Payload); err != nil {
				return err
			}
		}
		return control(ctx.Tx, own, g.Identity, state.Owner, r.Payload)
	default:
		return fmt.Errorf("action %d: %w", r.Action, ErrUnknownAction)
	}
}
