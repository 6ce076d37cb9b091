package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/merkle"
)

func TestDatum_DispatchAdvancesNonceAndTree(t *testing.T) {
	d := Datum{LocalDomain: 43113}
	prover := merkle.NewProver()

	for i := uint32(0); i < 3; i++ {
		msg := d.Dispatched(hyperlane.Bytes32{0x01}, 2003, hyperlane.Bytes32{0x02}, []byte("hi"))
		assert.Equal(t, i, msg.Nonce)
		assert.Equal(t, hyperlane.Domain(43113), msg.Origin)

		next, err := d.AfterDispatch(msg)
		require.NoError(t, err)
		_, err = prover.Insert(msg.ID())
		require.NoError(t, err)

		assert.Equal(t, i, d.Nonce, "previous state untouched")
		assert.Equal(t, i+1, next.Nonce)
		assert.Equal(t, prover.Root(), next.Tree.Root())
		d = next
	}
}

func TestDatum_EncodeDecode(t *testing.T) {
	d := Datum{LocalDomain: 2003, Owner: hyperlane.Hash28{0x09}, Nonce: 4}
	require.NoError(t, d.Tree.Insert(hyperlane.Bytes32{0x01}))

	got, err := DecodeDatum(d.Encode())
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = DecodeDatum([]byte{0xff})
	assert.Error(t, err)
}

func TestHandle_Matches(t *testing.T) {
	msg := codec.Message{
		Version: hyperlane.MessageVersion, Nonce: 1, Origin: 43113,
		Sender: hyperlane.Bytes32{0x01}, Destination: 2003,
		Recipient: hyperlane.Bytes32{0x02}, Body: []byte("body"),
	}
	h := HandleFor(msg)
	assert.True(t, h.Matches(msg))

	other := msg
	other.Body = []byte("other")
	assert.False(t, h.Matches(other))

	s := StoredMessageFor(msg)
	assert.True(t, s.Matches(msg))
	other = msg
	other.Nonce = 2
	assert.False(t, s.Matches(other))
}

func TestMarkerAsset_OnePerMessage(t *testing.T) {
	policy := hyperlane.Hash28{0x01}
	id := hyperlane.Bytes32{0x05}
	m := MarkerAsset(policy, id)
	assert.Equal(t, policy, m.Policy)
	assert.Equal(t, m, MarkerAsset(policy, id))
	assert.NotEqual(t, m, MarkerAsset(policy, hyperlane.Bytes32{0x06}))
	assert.NotEqual(t, m, MarkerAsset(hyperlane.Hash28{0x02}, id))
}
