package ism

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/multisig"
)

func TestDatum_WithValidatorSet(t *testing.T) {
	a := multisig.ValidatorSet{Validators: []common.Address{{0x01}}, Threshold: 1}
	b := multisig.ValidatorSet{Validators: []common.Address{{0x02}, {0x03}}, Threshold: 2}

	d := Datum{Owner: hyperlane.Hash28{0x09}}.WithValidatorSet(43113, a)
	d2 := d.WithValidatorSet(43113, b).WithValidatorSet(1, a)

	got, ok := d.ValidatorSet(43113)
	require.True(t, ok)
	assert.Equal(t, a, got, "original datum untouched")

	got, ok = d2.ValidatorSet(43113)
	require.True(t, ok)
	assert.Equal(t, b, got)
	assert.Len(t, d2.Sets, 2)
	assert.Equal(t, d.Owner, d2.Owner)

	_, ok = d2.ValidatorSet(2003)
	assert.False(t, ok)
}

func TestDatum_EncodeDecode(t *testing.T) {
	d := Datum{Owner: hyperlane.Hash28{0x09}}.WithValidatorSet(43113,
		multisig.ValidatorSet{Validators: []common.Address{{0x01}}, Threshold: 1})
	got, err := DecodeDatum(d.Encode())
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDatum_VerifyUnknownOrigin(t *testing.T) {
	err := Datum{}.Verify(codec.Message{Origin: 43113}, codec.Metadata{})
	assert.ErrorIs(t, err, hyperlane.ErrUntrustedVerifier)
}
