package builder

import (
	"fmt"

	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ism"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/mailbox"
)

const (
	VariantSpend     = "spend"
	VariantReference = "reference"
)

// MailboxAccess decides how a delivery holds the mailbox record.
type MailboxAccess interface {
	// AttachMailbox adds the mailbox record for processing p and returns
	// the redeemer for the replay-marker policy.
	AttachMailbox(d *Draft, rec ledger.Record, p mailbox.Process) []byte
	String() string
}

// VerifierAccess decides how a delivery holds the verifier record.
type VerifierAccess interface {
	// AttachVerifier adds the verifier record and returns the metadata the
	// process payload must carry, nil when the verifier checks it itself.
	AttachVerifier(d *Draft, rec ledger.Record, msg codec.Message, md codec.Metadata) *codec.Metadata
	String() string
}

// SpendMailbox consumes the mailbox and continues it unchanged.
type SpendMailbox struct{}

func (SpendMailbox) AttachMailbox(d *Draft, rec ledger.Record, p mailbox.Process) []byte {
	d.Spend(rec, mailbox.ProcessRedeemer(p).Encode())
	d.Pay(rec.Output)
	return nil
}

func (SpendMailbox) String() string { return VariantSpend }

// ReferenceMailbox only reads the mailbox. The marker policy then runs the
// process check, so concurrent deliveries do not contend for the mailbox.
type ReferenceMailbox struct{}

func (ReferenceMailbox) AttachMailbox(d *Draft, rec ledger.Record, p mailbox.Process) []byte {
	d.Reference(rec)
	return p.Encode()
}

func (ReferenceMailbox) String() string { return VariantReference }

// SpendVerifier consumes the verifier with a Verify redeemer bound to msg.
type SpendVerifier struct{}

func (SpendVerifier) AttachVerifier(d *Draft, rec ledger.Record, msg codec.Message, md codec.Metadata) *codec.Metadata {
	d.Spend(rec, ism.VerifyRedeemer(msg, md).Encode())
	d.Pay(rec.Output)
	return nil
}

func (SpendVerifier) String() string { return VariantSpend }

// ReferenceVerifier only reads the verifier state; the process check
// verifies the metadata against it.
type ReferenceVerifier struct{}

func (ReferenceVerifier) AttachVerifier(d *Draft, rec ledger.Record, _ codec.Message, md codec.Metadata) *codec.Metadata {
	d.Reference(rec)
	return &md
}

func (ReferenceVerifier) String() string { return VariantReference }

func MailboxAccessFor(variant string) (MailboxAccess, error) {
	switch variant {
	case VariantSpend, "":
		return SpendMailbox{}, nil
	case VariantReference:
		return ReferenceMailbox{}, nil
	default:
		return nil, fmt.Errorf("unknown mailbox variant %q", variant)
	}
}

func VerifierAccessFor(variant string) (VerifierAccess, error) {
	switch variant {
	case VariantSpend, "":
		return SpendVerifier{}, nil
	case VariantReference:
		return ReferenceVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown verifier variant %q", variant)
	}
}
