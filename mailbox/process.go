package mailbox

import (
	"fmt"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/ism"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

// CheckProcess is the inbound validity check. It is run by the mailbox
// validator when the mailbox is spent and by the replay-marker policy when
// the mailbox is only referenced; both variants accept exactly the same
// transactions.
//
// The absence of an earlier marker for the message is enforced by the
// ledger, which refuses to mint a unique marker that is already held.
func CheckProcess(info *ledger.TxInfo, datum Datum, markerPolicy hyperlane.Hash28, p Process) (codec.Message, error) {
	msg, err := codec.VerifyID(p.Message, p.MessageID)
	if err != nil {
		return codec.Message{}, err
	}
	if uint32(msg.Destination) != datum.LocalDomain {
		return codec.Message{}, fmt.Errorf("destination %d, local domain %d: %w",
			msg.Destination, datum.LocalDomain, hyperlane.ErrWrongDestination)
	}
	if err := checkVerifier(info, datum.DefaultIsm, msg, p.Metadata); err != nil {
		return codec.Message{}, err
	}
	if err := checkRecipient(info, msg); err != nil {
		return codec.Message{}, err
	}
	if n := info.Minted(MarkerAsset(markerPolicy, msg.ID())); n != 1 {
		return codec.Message{}, fmt.Errorf("marker for %s minted %d times: %w", msg.ID(), n, ErrMarkerNotMinted)
	}
	return msg, nil
}

// checkVerifier requires the trusted verifier to be exercised for this very
// message. A spent verifier must carry a Verify redeemer bound to msg; a
// referenced one is evaluated here against metadata.
func checkVerifier(info *ledger.TxInfo, trusted ledger.AssetClass, msg codec.Message, metadata []byte) error {
	if in, ok := info.InputWithAsset(trusted); ok {
		r, err := ism.DecodeRedeemer(in.Redeemer)
		if err != nil {
			return fmt.Errorf("verifier redeemer: %v: %w", err, hyperlane.ErrBindingMismatch)
		}
		verified, err := r.VerifiedMessage()
		if err != nil {
			return fmt.Errorf("verifier not run for a message: %v: %w", err, hyperlane.ErrBindingMismatch)
		}
		if verified.ID() != msg.ID() {
			return fmt.Errorf("verifier bound to %s, processing %s: %w",
				verified.ID(), msg.ID(), hyperlane.ErrBindingMismatch)
		}
		return nil
	}

	if ref, ok := info.ReferenceWithAsset(trusted); ok {
		datum, err := ism.DecodeDatum(ref.Output.Datum)
		if err != nil {
			return fmt.Errorf("%v: %w", err, hyperlane.ErrUntrustedVerifier)
		}
		md, err := codec.DecodeMetadata(metadata)
		if err != nil {
			return err
		}
		return datum.Verify(msg, md)
	}

	return fmt.Errorf("verifier %s not present: %w", trusted, hyperlane.ErrUntrustedVerifier)
}

// checkRecipient requires the recipient script to be exercised with a
// handling instruction for msg, or a deferred recipient to receive the
// stored message.
func checkRecipient(info *ledger.TxInfo, msg codec.Message) error {
	h, ok := msg.Recipient.ScriptHash()
	if !ok {
		return fmt.Errorf("recipient %s is not a script: %w", msg.Recipient, hyperlane.ErrRecipientNotExercised)
	}
	addr := ledger.ScriptAddr(h)
	for _, in := range info.InputsAt(addr) {
		r, err := DecodeRecipientRedeemer(in.Redeemer)
		if err != nil || r.Action != RecipientHandle {
			continue
		}
		if r.Handle.Matches(msg) {
			return nil
		}
	}
	// A stored message only counts when it carries the recipient's own proof
	// token, so the recipient's policy has run in this transaction.
	proof := ProofAsset(h, msg.ID())
	for _, out := range info.OutputsAt(addr) {
		if !out.Value.Has(proof) {
			continue
		}
		s, err := DecodeStoredMessage(out.Datum)
		if err != nil {
			continue
		}
		if s.Matches(msg) {
			return nil
		}
	}
	return fmt.Errorf("recipient %s: %w", h, hyperlane.ErrRecipientNotExercised)
}
