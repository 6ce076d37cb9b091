package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

type finder map[ledger.AssetClass][]ledger.Record

func (f finder) FindByAsset(_ context.Context, asset ledger.AssetClass) ([]ledger.Record, error) {
	return f[asset], nil
}

func validRegistration() Registration {
	return Registration{
		Recipient:    hyperlane.Hash28{0x01},
		StateLocator: ledger.AssetClass{Policy: hyperlane.Hash28{0x02}, Name: "state"},
		Auxiliary:    []ledger.AssetClass{{Policy: hyperlane.Hash28{0x04}, Name: "vault"}},
		Category:     CategoryGeneric,
	}
}

func TestRegistration_Validate(t *testing.T) {
	require.NoError(t, validRegistration().Validate())

	tests := []struct {
		name   string
		mutate func(*Registration)
		want   error
	}{
		{"custom verifier", func(r *Registration) {
			r.HasCustomIsm = true
			r.CustomIsm = ledger.AssetClass{Policy: hyperlane.Hash28{0x03}}
		}, hyperlane.ErrCustomVerifierDisabled},
		{"unknown category", func(r *Registration) { r.Category = CategoryDeferred + 1 }, ErrInvalidRegistration},
		{"no state locator", func(r *Registration) { r.StateLocator = ledger.AssetClass{} }, ErrInvalidRegistration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validRegistration()
			tc.mutate(&r)
			assert.ErrorIs(t, r.Validate(), tc.want)
		})
	}
}

func TestClient_Lookup(t *testing.T) {
	registryHash := hyperlane.Hash28{0xee}
	reg := validRegistration()
	entry := EntryAsset(registryHash, reg.Recipient)
	good := ledger.Record{
		Ref:    ledger.OutRef{Index: 1},
		Output: ledger.Output{Address: ledger.ScriptAddr(registryHash), Datum: reg.Encode()},
	}
	forged := ledger.Record{
		Ref:    ledger.OutRef{Index: 0},
		Output: ledger.Output{Address: ledger.KeyAddr(hyperlane.Hash28{0x66}), Datum: []byte("junk")},
	}
	c := NewClient(registryHash, finder{entry: {forged, good}})

	got, rec, err := c.Lookup(context.Background(), reg.Recipient)
	require.NoError(t, err)
	assert.Equal(t, reg, got)
	assert.Equal(t, good.Ref, rec.Ref)

	_, _, err = c.Lookup(context.Background(), hyperlane.Hash28{0x99})
	assert.True(t, errors.Is(err, hyperlane.ErrRegistrationNotFound))
}

func TestRegistration_RecipientAddress(t *testing.T) {
	reg := validRegistration()
	h, ok := reg.RecipientAddress().ScriptHash()
	require.True(t, ok)
	assert.Equal(t, reg.Recipient, h)
}
