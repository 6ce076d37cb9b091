package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ism"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
	"github.com/compose-network/hyperlane-eutxo/multisig"
	"github.com/compose-network/hyperlane-eutxo/recipient"
	"github.com/compose-network/hyperlane-eutxo/registry"
)

var ErrNotDeferred = errors.New("recipient does not store messages")

// Dispatched is an outbound message accepted by the mailbox. LeafIndex is
// its position in the mailbox accumulator.
type Dispatched struct {
	Message   codec.Message
	LeafIndex uint32
	TxID      ledger.TxID
}

// Dispatch sends body to recipient on destination with the wallet as
// sender. The message is rebuilt from the mailbox state on every attempt,
// so a lost race yields the next free nonce.
func (b *Builder) Dispatch(ctx context.Context, destination hyperlane.Domain, to hyperlane.Bytes32, body []byte) (Dispatched, error) {
	if len(body) > mailbox.MaxBodyLen {
		return Dispatched{}, fmt.Errorf("body of %d bytes exceeds %d: %w", len(body), mailbox.MaxBodyLen, hyperlane.ErrMalformedMessage)
	}
	var out Dispatched
	id, attempts, err := b.retry(ctx, "dispatch", func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) {
			rec, datum, err := b.mailboxState(ctx)
			if err != nil {
				return nil, err
			}
			sender := b.wallet.Sender()
			msg := datum.Dispatched(sender, destination, to, body)
			next, err := datum.AfterDispatch(msg)
			if err != nil {
				return nil, err
			}
			out.Message, out.LeafIndex = msg, datum.Tree.Count

			d := NewDraft()
			d.Spend(rec, mailbox.DispatchRedeemer(sender, destination, to, body).Encode())
			cont := rec.Output.Clone()
			cont.Datum = next.Encode()
			d.Pay(cont)
			d.RequireSigner(b.wallet.KeyHash())
			return b.wallet.Complete(ctx, d, b.params)
		})
	})
	if err != nil {
		return Dispatched{}, err
	}
	out.TxID = id
	b.logger.Info().
		Str("message_id", out.Message.ID().String()).
		Uint32("nonce", out.Message.Nonce).
		Uint32("destination", uint32(destination)).
		Int("attempts", attempts).
		Msg("Message dispatched")
	return out, nil
}

func (b *Builder) mailboxState(ctx context.Context) (ledger.Record, mailbox.Datum, error) {
	rec, err := locate(ctx, b.indexer, "mailbox", b.dep.MailboxIdentity)
	if err != nil {
		return ledger.Record{}, mailbox.Datum{}, err
	}
	datum, err := mailbox.DecodeDatum(rec.Output.Datum)
	if err != nil {
		return ledger.Record{}, mailbox.Datum{}, err
	}
	return rec, datum, nil
}

// Register creates or replaces the registry entry of reg.Recipient. The
// recipient state is exercised with an owner-signed Control redeemer, as
// the registry requires.
func (b *Builder) Register(ctx context.Context, reg registry.Registration) (ledger.TxID, error) {
	if err := reg.Validate(); err != nil {
		return ledger.TxID{}, err
	}
	script := b.dep.Registry()
	entry := script.Entry(reg.Recipient)
	id, _, err := b.retry(ctx, "register", func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) {
			d := NewDraft()
			if err := b.exerciseRecipient(ctx, d, reg); err != nil {
				return nil, err
			}
			_, existing, err := b.registry.Lookup(ctx, reg.Recipient)
			switch {
			case err == nil:
				d.Spend(existing, registry.Redeemer{Action: registry.ActionUpdate}.Encode())
				d.Pay(ledger.Output{Address: existing.Output.Address, Value: existing.Output.Value, Datum: reg.Encode()})
			case errors.Is(err, hyperlane.ErrRegistrationNotFound):
				d.Mint(entry, 1, nil)
				d.Pay(ledger.Output{
					Address: script.Address(),
					Value:   ledger.Coin(b.opts.Deposit).WithAsset(entry, 1),
					Datum:   reg.Encode(),
				})
			default:
				return nil, err
			}
			return b.wallet.Complete(ctx, d, b.params)
		})
	})
	if err != nil {
		return ledger.TxID{}, err
	}
	b.logger.Info().
		Str("recipient", reg.Recipient.String()).
		Str("category", reg.Category.String()).
		Msg("Recipient registered")
	return id, nil
}

// Deregister removes the registry entry of recipient.
func (b *Builder) Deregister(ctx context.Context, recipientHash hyperlane.Hash28) (ledger.TxID, error) {
	entry := b.dep.Registry().Entry(recipientHash)
	id, _, err := b.retry(ctx, "deregister", func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) {
			reg, rec, err := b.registry.Lookup(ctx, recipientHash)
			if err != nil {
				return nil, err
			}
			d := NewDraft()
			if err := b.exerciseRecipient(ctx, d, reg); err != nil {
				return nil, err
			}
			d.Spend(rec, registry.Redeemer{Action: registry.ActionDeregister}.Encode())
			d.Mint(entry, -1, nil)
			return b.wallet.Complete(ctx, d, b.params)
		})
	})
	return id, err
}

// exerciseRecipient spends the recipient state with an empty Control
// redeemer and continues it unchanged.
func (b *Builder) exerciseRecipient(ctx context.Context, d *Draft, reg registry.Registration) error {
	rec, err := b.recipientState(ctx, reg)
	if err != nil {
		return err
	}
	d.Spend(rec, mailbox.ControlRedeemer(nil).Encode())
	d.Pay(rec.Output)
	d.RequireSigner(b.wallet.KeyHash())
	return nil
}

// ProcessStored consumes the message a deferred recipient stored for id.
func (b *Builder) ProcessStored(ctx context.Context, recipientHash hyperlane.Hash28, id hyperlane.Bytes32) (mailbox.StoredMessage, ledger.TxID, error) {
	var stored mailbox.StoredMessage
	txID, _, err := b.retry(ctx, "process-stored", func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) {
			reg, _, err := b.registry.Lookup(ctx, recipientHash)
			if err != nil {
				return nil, err
			}
			if reg.Category != registry.CategoryDeferred {
				return nil, fmt.Errorf("recipient %s is %s: %w", recipientHash, reg.Category, ErrNotDeferred)
			}
			stateRec, err := b.recipientState(ctx, reg)
			if err != nil {
				return nil, err
			}
			state, err := recipient.DecodeDeferredState(stateRec.Output.Datum)
			if err != nil {
				return nil, err
			}
			proof := mailbox.ProofAsset(recipientHash, id)
			storedRec, err := locate(ctx, b.indexer, "stored message", proof)
			if err != nil {
				return nil, err
			}
			if stored, err = mailbox.DecodeStoredMessage(storedRec.Output.Datum); err != nil {
				return nil, err
			}

			redeemer := mailbox.ProcessStoredRedeemer(id).Encode()
			d := NewDraft()
			d.Spend(stateRec, redeemer)
			next := stateRec.Output.Clone()
			next.Datum = state.Consume(id).Encode()
			d.Pay(next)
			d.Spend(storedRec, redeemer)
			d.Mint(proof, -1, nil)
			return b.wallet.Complete(ctx, d, b.params)
		})
	})
	if err != nil {
		return mailbox.StoredMessage{}, ledger.TxID{}, err
	}
	b.logger.Info().Str("message_id", id.String()).Str("recipient", recipientHash.String()).Msg("Stored message processed")
	return stored, txID, nil
}

// SetDefaultIsm points the mailbox at another verifier identity.
func (b *Builder) SetDefaultIsm(ctx context.Context, verifier ledger.AssetClass) (ledger.TxID, error) {
	return b.updateMailbox(ctx, "set-default-ism", mailbox.SetDefaultIsmRedeemer(verifier), func(d mailbox.Datum) mailbox.Datum {
		d.DefaultIsm = verifier
		return d
	})
}

func (b *Builder) TransferOwnership(ctx context.Context, owner hyperlane.Hash28) (ledger.TxID, error) {
	return b.updateMailbox(ctx, "transfer-ownership", mailbox.TransferOwnershipRedeemer(owner), func(d mailbox.Datum) mailbox.Datum {
		d.Owner = owner
		return d
	})
}

func (b *Builder) updateMailbox(ctx context.Context, op string, r mailbox.Redeemer, apply func(mailbox.Datum) mailbox.Datum) (ledger.TxID, error) {
	id, _, err := b.retry(ctx, op, func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) {
			rec, datum, err := b.mailboxState(ctx)
			if err != nil {
				return nil, err
			}
			d := NewDraft()
			d.Spend(rec, r.Encode())
			cont := rec.Output.Clone()
			cont.Datum = apply(datum).Encode()
			d.Pay(cont)
			d.RequireSigner(b.wallet.KeyHash())
			return b.wallet.Complete(ctx, d, b.params)
		})
	})
	return id, err
}

// SetValidators replaces the validator set the current default verifier
// trusts for origin.
func (b *Builder) SetValidators(ctx context.Context, origin hyperlane.Domain, set multisig.ValidatorSet) (ledger.TxID, error) {
	if err := set.Validate(); err != nil {
		return ledger.TxID{}, err
	}
	id, _, err := b.retry(ctx, "set-validators", func() (ledger.TxID, error) {
		return b.submit(ctx, func() (*ledger.Tx, error) {
			_, mbx, err := b.mailboxState(ctx)
			if err != nil {
				return nil, err
			}
			rec, err := locate(ctx, b.indexer, "verifier", mbx.DefaultIsm)
			if err != nil {
				return nil, err
			}
			datum, err := ism.DecodeDatum(rec.Output.Datum)
			if err != nil {
				return nil, err
			}
			d := NewDraft()
			d.Spend(rec, ism.SetValidatorsRedeemer(origin, set).Encode())
			cont := rec.Output.Clone()
			cont.Datum = datum.WithValidatorSet(origin, set).Encode()
			d.Pay(cont)
			d.RequireSigner(b.wallet.KeyHash())
			return b.wallet.Complete(ctx, d, b.params)
		})
	})
	if err != nil {
		return ledger.TxID{}, err
	}
	b.logger.Info().Uint32("origin", uint32(origin)).Int("validators", len(set.Validators)).Msg("Validator set updated")
	return id, nil
}
