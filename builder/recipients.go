package builder

import (
	"context"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/recipient"
	"github.com/compose-network/hyperlane-eutxo/registry"
)

// attachRecipient adds the category-specific part of a delivery.
func (b *Builder) attachRecipient(ctx context.Context, d *Draft, reg registry.Registration, msg codec.Message) error {
	switch reg.Category {
	case registry.CategoryGeneric:
		return b.attachGeneric(ctx, d, reg, msg)
	case registry.CategoryTokenReceiver:
		return b.attachToken(ctx, d, reg, msg)
	case registry.CategoryDeferred:
		return b.attachDeferred(d, reg, msg)
	default:
		return fmt.Errorf("category %s: %w", reg.Category, registry.ErrInvalidRegistration)
	}
}

// recipientState locates the state record of reg and checks it is guarded
// by the registered script.
func (b *Builder) recipientState(ctx context.Context, reg registry.Registration) (ledger.Record, error) {
	rec, err := locate(ctx, b.indexer, "recipient state", reg.StateLocator)
	if err != nil {
		return ledger.Record{}, err
	}
	if rec.Output.Address != ledger.ScriptAddr(reg.Recipient) {
		return ledger.Record{}, fmt.Errorf("state of %s held at %s: %w", reg.Recipient, rec.Output.Address, hyperlane.ErrRecipientNotExercised)
	}
	return rec, nil
}

func (b *Builder) attachGeneric(ctx context.Context, d *Draft, reg registry.Registration, msg codec.Message) error {
	rec, err := b.recipientState(ctx, reg)
	if err != nil {
		return err
	}
	state, err := recipient.DecodeGenericState(rec.Output.Datum)
	if err != nil {
		return err
	}
	d.Spend(rec, mailbox.HandleRedeemer(msg).Encode())
	next := rec.Output.Clone()
	next.Datum = state.Receive(mailbox.HandleFor(msg)).Encode()
	d.Pay(next)
	return nil
}

func (b *Builder) attachToken(ctx context.Context, d *Draft, reg registry.Registration, msg codec.Message) error {
	rec, err := b.recipientState(ctx, reg)
	if err != nil {
		return err
	}
	state, err := recipient.DecodeRouterState(rec.Output.Datum)
	if err != nil {
		return err
	}
	tm, err := recipient.DecodeTokenMessage(msg.Body)
	if err != nil {
		return err
	}
	to, amount, err := tm.Payout()
	if err != nil {
		return err
	}
	d.Spend(rec, mailbox.HandleRedeemer(msg).Encode())
	next := rec.Output.Clone()
	next.Datum = state.Receive(amount).Encode()
	d.Pay(next)

	if !state.Asset.IsZero() {
		if amount == 0 {
			return nil
		}
		d.Mint(state.Asset, int64(amount), nil)
		d.Pay(ledger.Output{Address: to, Value: ledger.Coin(b.opts.Deposit).WithAsset(state.Asset, amount)})
		return nil
	}

	if len(reg.Auxiliary) == 0 {
		return fmt.Errorf("collateral receiver %s without vault: %w", reg.Recipient, registry.ErrInvalidRegistration)
	}
	vault, err := locate(ctx, b.indexer, "vault", reg.Auxiliary[0])
	if err != nil {
		return err
	}
	rest, err := vault.Output.Value.Sub(ledger.Coin(amount))
	if err != nil {
		return fmt.Errorf("vault of %s: %w", reg.Recipient, err)
	}
	d.Spend(vault, nil)
	d.Pay(ledger.Output{Address: vault.Output.Address, Value: rest, Datum: vault.Output.Datum})
	if amount > 0 {
		d.Pay(ledger.Output{Address: to, Value: ledger.Coin(amount)})
	}
	return nil
}

// attachDeferred stores the message at the recipient under a freshly
// minted proof token; the state record is left for the second phase.
func (b *Builder) attachDeferred(d *Draft, reg registry.Registration, msg codec.Message) error {
	proof := mailbox.ProofAsset(reg.Recipient, msg.ID())
	d.Mint(proof, 1, nil)
	d.Pay(ledger.Output{
		Address: ledger.ScriptAddr(reg.Recipient),
		Value:   ledger.Coin(b.opts.Deposit).WithAsset(proof, 1),
		Datum:   mailbox.StoredMessageFor(msg).Encode(),
	})
	return nil
}
