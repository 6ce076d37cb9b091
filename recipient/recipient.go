// Package recipient holds the recipient validators messages are delivered
// to. Each recipient accepts a message only when the replay marker for it is
// minted in the same transaction, which in turn requires the mailbox to have
// processed it.
package recipient

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

var (
	ErrMissingIdentity = errors.New("record does not hold the recipient identity")
	ErrNotDelivered    = errors.New("message not delivered by the mailbox")
	ErrUnknownAction   = errors.New("unknown recipient action")
	ErrBadPayout       = errors.New("transfer not paid out as sent")
)

func requireMarker(tx *ledger.TxInfo, markerPolicy hyperlane.Hash28, id hyperlane.Bytes32) error {
	if tx.Minted(mailbox.MarkerAsset(markerPolicy, id)) != 1 {
		return fmt.Errorf("message %s: %w", id, ErrNotDelivered)
	}
	return nil
}

// control applies an owner-authorised action: with no payload the state is
// continued unchanged, otherwise payload is the new state.
func control(tx *ledger.TxInfo, own ledger.ResolvedInput, identity ledger.AssetClass, owner hyperlane.Hash28, payload []byte) error {
	if !tx.SignedBy(owner) {
		return fmt.Errorf("control: %w", hyperlane.ErrUnauthorized)
	}
	if len(payload) == 0 {
		return tx.Unchanged(own, identity)
	}
	out, err := tx.Continuation(own, identity)
	if err != nil {
		return err
	}
	if !bytes.Equal(out.Datum, payload) {
		return fmt.Errorf("control state: %w", ledger.ErrContinuationMismatch)
	}
	return nil
}

func continueWith(tx *ledger.TxInfo, own ledger.ResolvedInput, identity ledger.AssetClass, next []byte) error {
	out, err := tx.Continuation(own, identity)
	if err != nil {
		return err
	}
	if !bytes.Equal(out.Datum, next) {
		return fmt.Errorf("recipient state: %w", ledger.ErrContinuationMismatch)
	}
	return nil
}
