// Package registry maps a recipient script to the unique-token locators the
// builder needs to deliver to it. Entries are records at the registry
// address, each holding a token named by the recipient's script hash.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

var (
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrUnknownAction       = errors.New("unknown registry action")
)

type Category uint8

const (
	CategoryGeneric Category = iota
	CategoryTokenReceiver
	CategoryDeferred
)

func (c Category) String() string {
	switch c {
	case CategoryGeneric:
		return "Generic"
	case CategoryTokenReceiver:
		return "TokenReceiver"
	case CategoryDeferred:
		return "Deferred"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Registration is the entry of one recipient.
type Registration struct {
	Recipient    hyperlane.Hash28
	StateLocator ledger.AssetClass
	Auxiliary    []ledger.AssetClass
	Category     Category
	// A per-recipient verifier is kept in the schema but never accepted: a
	// forged record could otherwise name a verifier of the attacker's choice.
	HasCustomIsm bool
	CustomIsm    ledger.AssetClass
}

func (r Registration) Encode() []byte {
	b, err := rlp.EncodeToBytes(r)
	if err != nil {
		panic(fmt.Sprintf("encode registration: %v", err))
	}
	return b
}

func DecodeRegistration(b []byte) (Registration, error) {
	var r Registration
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return Registration{}, fmt.Errorf("registration: %w", err)
	}
	return r, nil
}

func (r Registration) Validate() error {
	if r.HasCustomIsm {
		return hyperlane.ErrCustomVerifierDisabled
	}
	if r.Category > CategoryDeferred {
		return fmt.Errorf("category %d: %w", r.Category, ErrInvalidRegistration)
	}
	if r.StateLocator.IsZero() {
		return fmt.Errorf("no state locator: %w", ErrInvalidRegistration)
	}
	return nil
}

// RecipientAddress is the 32-byte address messages to r carry.
func (r Registration) RecipientAddress() hyperlane.Bytes32 {
	return hyperlane.ScriptAddress(r.Recipient)
}

type Action uint8

const (
	ActionUpdate Action = iota
	ActionDeregister
)

type Redeemer struct {
	Action Action
}

func (r Redeemer) Encode() []byte {
	b, err := rlp.EncodeToBytes(r)
	if err != nil {
		panic(fmt.Sprintf("encode registry redeemer: %v", err))
	}
	return b
}

func DecodeRedeemer(b []byte) (Redeemer, error) {
	var r Redeemer
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return Redeemer{}, fmt.Errorf("registry redeemer: %w", err)
	}
	return r, nil
}

// AssetFinder resolves a unique-token identity to the records holding it.
type AssetFinder interface {
	FindByAsset(ctx context.Context, asset ledger.AssetClass) ([]ledger.Record, error)
}

// Client looks registrations up by identity.
type Client struct {
	script hyperlane.Hash28
	finder AssetFinder
}

func NewClient(registry hyperlane.Hash28, finder AssetFinder) *Client {
	return &Client{script: registry, finder: finder}
}

// Lookup returns the registration of recipient together with the record
// holding it.
func (c *Client) Lookup(ctx context.Context, recipient hyperlane.Hash28) (Registration, ledger.Record, error) {
	recs, err := c.finder.FindByAsset(ctx, EntryAsset(c.script, recipient))
	if err != nil {
		return Registration{}, ledger.Record{}, err
	}
	for _, rec := range recs {
		if rec.Output.Address != ledger.ScriptAddr(c.script) {
			continue
		}
		reg, err := DecodeRegistration(rec.Output.Datum)
		if err != nil {
			return Registration{}, ledger.Record{}, err
		}
		return reg, rec, nil
	}
	return Registration{}, ledger.Record{}, fmt.Errorf("recipient %s: %w", recipient, hyperlane.ErrRegistrationNotFound)
}

// EntryAsset is the token identifying the entry of recipient.
func EntryAsset(registry, recipient hyperlane.Hash28) ledger.AssetClass {
	return ledger.AssetClass{Policy: registry, Name: string(recipient[:])}
}
