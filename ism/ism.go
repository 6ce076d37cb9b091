// Package ism is the on-chain record of the multisig interchain security
// module. It is consulted for every inbound message and carries the trusted
// validator set of each origin.
package ism

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/multisig"
)

var (
	ErrMissingIdentity = errors.New("record does not hold the verifier identity")
	ErrUnknownAction   = errors.New("unknown verifier action")
)

type DomainSet struct {
	Origin     uint32
	Validators []common.Address
	Threshold  uint8
}

// Datum is the verifier state: the owner allowed to change validator sets
// and one set per origin domain.
type Datum struct {
	Owner hyperlane.Hash28
	Sets  []DomainSet
}

func (d Datum) Encode() []byte {
	b, err := rlp.EncodeToBytes(d)
	if err != nil {
		panic(fmt.Sprintf("encode ism datum: %v", err))
	}
	return b
}

func DecodeDatum(b []byte) (Datum, error) {
	var d Datum
	if err := rlp.DecodeBytes(b, &d); err != nil {
		return Datum{}, fmt.Errorf("ism datum: %w", err)
	}
	return d, nil
}

// ValidatorSet returns the trusted set of origin.
func (d Datum) ValidatorSet(origin hyperlane.Domain) (multisig.ValidatorSet, bool) {
	for _, s := range d.Sets {
		if s.Origin == uint32(origin) {
			return multisig.ValidatorSet{Validators: s.Validators, Threshold: s.Threshold}, true
		}
	}
	return multisig.ValidatorSet{}, false
}

// WithValidatorSet returns a copy of d with the set for origin replaced.
func (d Datum) WithValidatorSet(origin hyperlane.Domain, set multisig.ValidatorSet) Datum {
	out := Datum{Owner: d.Owner}
	replaced := false
	for _, s := range d.Sets {
		if s.Origin == uint32(origin) {
			s = DomainSet{Origin: s.Origin, Validators: set.Validators, Threshold: set.Threshold}
			replaced = true
		}
		out.Sets = append(out.Sets, s)
	}
	if !replaced {
		out.Sets = append(out.Sets, DomainSet{Origin: uint32(origin), Validators: set.Validators, Threshold: set.Threshold})
	}
	return out
}

// Verify checks message against metadata using the set of the message's
// origin. It is the check both the spent and the referenced verifier run.
func (d Datum) Verify(msg codec.Message, md codec.Metadata) error {
	set, ok := d.ValidatorSet(msg.Origin)
	if !ok {
		return fmt.Errorf("no validator set for origin %d: %w", msg.Origin, hyperlane.ErrUntrustedVerifier)
	}
	cp, err := md.Checkpoint(msg)
	if err != nil {
		return err
	}
	return multisig.CheckThreshold(set, cp, multisig.SignaturesFromMetadata(md))
}

type Action uint8

const (
	ActionVerify Action = iota
	ActionSetValidators
)

// Redeemer is the instruction the verifier record is spent with. A Verify
// redeemer binds the verification to one encoded message.
type Redeemer struct {
	Action     Action
	Message    []byte
	Metadata   []byte
	Origin     uint32
	Validators []common.Address
	Threshold  uint8
}

func VerifyRedeemer(msg codec.Message, md codec.Metadata) Redeemer {
	return Redeemer{Action: ActionVerify, Message: msg.Encode(), Metadata: md.Encode()}
}

func SetValidatorsRedeemer(origin hyperlane.Domain, set multisig.ValidatorSet) Redeemer {
	return Redeemer{
		Action:     ActionSetValidators,
		Origin:     uint32(origin),
		Validators: set.Validators,
		Threshold:  set.Threshold,
	}
}

func (r Redeemer) Encode() []byte {
	b, err := rlp.EncodeToBytes(r)
	if err != nil {
		panic(fmt.Sprintf("encode ism redeemer: %v", err))
	}
	return b
}

func DecodeRedeemer(b []byte) (Redeemer, error) {
	var r Redeemer
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return Redeemer{}, fmt.Errorf("ism redeemer: %w", err)
	}
	return r, nil
}

// VerifiedMessage decodes the message a Verify redeemer is bound to.
func (r Redeemer) VerifiedMessage() (codec.Message, error) {
	if r.Action != ActionVerify {
		return codec.Message{}, fmt.Errorf("action %d: %w", r.Action, ErrUnknownAction)
	}
	return codec.DecodeMessage(r.Message)
}
