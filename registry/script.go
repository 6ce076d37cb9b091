package registry

import (
	"bytes"
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

// Script is both the entry-token policy and the validator guarding entries.
// Every change to an entry requires the recipient it describes to be
// exercised in the same transaction.
type Script struct {
	Mailbox ledger.AssetClass
}

func NewScript(mailboxIdentity ledger.AssetClass) *Script {
	return &Script{Mailbox: mailboxIdentity}
}

func (s *Script) Hash() hyperlane.Hash28 {
	return ledger.ScriptHashOf("registry", s.Mailbox.IndexKey())
}

func (s *Script) Address() ledger.Address {
	return ledger.ScriptAddr(s.Hash())
}

func (s *Script) Entry(recipient hyperlane.Hash28) ledger.AssetClass {
	return EntryAsset(s.Hash(), recipient)
}

func (s *Script) ValidateMint(ctx *ledger.ScriptContext) error {
	for _, m := range ctx.OwnMint() {
		if len(m.Asset.Name) != len(hyperlane.Hash28{}) {
			return fmt.Errorf("entry name of %d bytes: %w", len(m.Asset.Name), ErrInvalidRegistration)
		}
		var recipient hyperlane.Hash28
		copy(recipient[:], m.Asset.Name)
		if !ctx.Tx.ExercisesScript(recipient) {
			return fmt.Errorf("register %s: %w", recipient, hyperlane.ErrRecipientNotExercised)
		}
		switch net := ctx.Tx.Minted(m.Asset); net {
		case 1:
			if err := s.checkEntryOutput(ctx.Tx, m.Asset, recipient); err != nil {
				return err
			}
		case -1:
			// The spent entry's validator checks the deregistration.
		default:
			return fmt.Errorf("entry %s minted %d: %w", recipient, net, ErrInvalidRegistration)
		}
	}
	return nil
}

func (s *Script) checkEntryOutput(tx *ledger.TxInfo, entry ledger.AssetClass, recipient hyperlane.Hash28) error {
	outs := tx.OutputsWithAsset(entry)
	if len(outs) != 1 || outs[0].Address != s.Address() {
		return fmt.Errorf("entry %s must be held once at the registry: %w", recipient, ErrInvalidRegistration)
	}
	reg, err := DecodeRegistration(outs[0].Datum)
	if err != nil {
		return err
	}
	if reg.Recipient != recipient {
		return fmt.Errorf("entry %s describes %s: %w", recipient, reg.Recipient, ErrInvalidRegistration)
	}
	return reg.Validate()
}

func (s *Script) ValidateSpend(ctx *ledger.ScriptContext) error {
	own, ok := ctx.OwnInput()
	if !ok {
		return ErrInvalidRegistration
	}
	reg, err := DecodeRegistration(own.Output.Datum)
	if err != nil {
		return err
	}
	entry := s.Entry(reg.Recipient)
	if !own.Output.Value.Has(entry) {
		return fmt.Errorf("record does not hold entry %s: %w", reg.Recipient, ErrInvalidRegistration)
	}
	if !ctx.Tx.ExercisesScript(reg.Recipient) {
		return fmt.Errorf("update %s: %w", reg.Recipient, hyperlane.ErrRecipientNotExercised)
	}
	r, err := DecodeRedeemer(ctx.Redeemer)
	if err != nil {
		return err
	}

	switch r.Action {
	case ActionUpdate:
		out, err := ctx.Tx.Continuation(own, entry)
		if err != nil {
			return err
		}
		next, err := DecodeRegistration(out.Datum)
		if err != nil {
			return err
		}
		if next.Recipient != reg.Recipient {
			return fmt.Errorf("entry %s rewritten for %s: %w", reg.Recipient, next.Recipient, ErrInvalidRegistration)
		}
		if bytes.Equal(out.Datum, own.Output.Datum) {
			return nil
		}
		return next.Validate()

	case ActionDeregister:
		if ctx.Tx.Minted(entry) != -1 {
			return fmt.Errorf("deregister %s without burning the entry: %w", reg.Recipient, ErrInvalidRegistration)
		}
		return nil

	default:
		return fmt.Errorf("action %d: %w", r.Action, ErrUnknownAction)
	}
}
