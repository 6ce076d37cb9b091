// Package replay issues and looks up processed-message markers. A marker is
// a unique token named by the message id; while it exists the message can
// never be processed again.
package replay

import (
	"errors"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

var (
	ErrMarkerBurn        = errors.New("replay markers are never burned")
	ErrOneMarkerPerTx    = errors.New("exactly one replay marker per transaction")
	ErrMalformedMarker   = errors.New("marker name is not a message id")
	ErrMailboxNotPresent = errors.New("mailbox not present")
)

// Policy mints markers. Minting requires the mailbox of this deployment to
// process the same message in the same transaction: spent with a Process
// redeemer, or referenced with the full process check run here.
type Policy struct {
	Mailbox ledger.AssetClass
}

func NewPolicy(mailboxIdentity ledger.AssetClass) *Policy {
	return &Policy{Mailbox: mailboxIdentity}
}

func (p *Policy) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("replay/marker", p.Mailbox.IndexKey())
}

func (p *Policy) Marker(id hyperlane.Bytes32) ledger.AssetClass {
	return mailbox.MarkerAsset(p.Hash(), id)
}

func (p *Policy) DuplicateMint(asset ledger.AssetClass) error {
	return fmt.Errorf("marker %x exists: %w", asset.Name, hyperlane.ErrAlreadyProcessed)
}

func (p *Policy) ValidateMint(ctx *ledger.ScriptContext) error {
	mints := ctx.OwnMint()
	for _, m := range mints {
		if m.Amount < 0 {
			return ErrMarkerBurn
		}
	}
	if len(mints) != 1 || mints[0].Amount != 1 {
		return ErrOneMarkerPerTx
	}
	if len(mints[0].Asset.Name) != 32 {
		return fmt.Errorf("name of %d bytes: %w", len(mints[0].Asset.Name), ErrMalformedMarker)
	}
	id := hyperlane.BytesToBytes32([]byte(mints[0].Asset.Name))

	if in, ok := ctx.Tx.InputWithAsset(p.Mailbox); ok {
		r, err := mailbox.DecodeRedeemer(in.Redeemer)
		if err != nil {
			return err
		}
		if r.Action != mailbox.ActionProcess || r.Process.MessageID != id {
			return fmt.Errorf("mailbox spent with %s for %s: %w", r.Action, r.Process.MessageID, hyperlane.ErrBindingMismatch)
		}
		return nil
	}

	if ref, ok := ctx.Tx.ReferenceWithAsset(p.Mailbox); ok {
		datum, err := mailbox.DecodeDatum(ref.Output.Datum)
		if err != nil {
			return err
		}
		proc, err := mailbox.DecodeProcess(ctx.Redeemer)
		if err != nil {
			return err
		}
		if proc.MessageID != id {
			return fmt.Errorf("marker %s for process of %s: %w", id, proc.MessageID, hyperlane.ErrBindingMismatch)
		}
		_, err = mailbox.CheckProcess(ctx.Tx, datum, p.Hash(), proc)
		return err
	}

	return ErrMailboxNotPresent
}
