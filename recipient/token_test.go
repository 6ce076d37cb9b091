package recipient

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

func TestTokenMessage_Payout(t *testing.T) {
	payee := hyperlane.Hash28{0x42}
	m := TokenMessage{Recipient: hyperlane.KeyAddress(payee), Amount: uint256.NewInt(1_500_000), Metadata: []byte{1}}

	got, err := DecodeTokenMessage(m.Encode())
	require.NoError(t, err)
	addr, amount, err := got.Payout()
	require.NoError(t, err)
	assert.Equal(t, ledger.KeyAddr(payee), addr)
	assert.Equal(t, uint64(1_500_000), amount)
	assert.Equal(t, []byte{1}, got.Metadata)
}

func TestTokenMessage_Rejects(t *testing.T) {
	_, err := DecodeTokenMessage(make([]byte, 63))
	assert.ErrorIs(t, err, hyperlane.ErrMalformedMessage)

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	_, _, err = TokenMessage{Recipient: hyperlane.KeyAddress(hyperlane.Hash28{1}), Amount: huge}.Payout()
	assert.ErrorIs(t, err, hyperlane.ErrMalformedMessage)

	_, _, err = TokenMessage{Recipient: hyperlane.Bytes32{0xff, 0xff}, Amount: uint256.NewInt(1)}.Payout()
	assert.ErrorIs(t, err, hyperlane.ErrMalformedMessage)
}

func TestRouterState(t *testing.T) {
	s := RouterState{Routers: []RemoteRouter{{Domain: 43113, Router: hyperlane.Bytes32{0x0a}}}}

	r, ok := s.Router(43113)
	require.True(t, ok)
	assert.Equal(t, hyperlane.Bytes32{0x0a}, r)
	_, ok = s.Router(1)
	assert.False(t, ok)

	next := s.Receive(700).Receive(700)
	assert.Equal(t, uint64(2), next.Received)
	assert.Equal(t, uint64(1400), next.Total)
	assert.Zero(t, s.Total)
}

func TestDeferredState_Consume(t *testing.T) {
	var s DeferredState
	next := s.Consume(hyperlane.Bytes32{0x01})
	assert.Equal(t, hyperlane.Bytes32{0x01}, next.LastMessageID)
	assert.Zero(t, s.Processed)
	assert.NotZero(t, next.Processed)
}
